package ui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/watchparty/internal/session"
)

// StatusUI runs the live status view and accepts updates from other
// goroutines.
type StatusUI struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// NewStatusUI prepares the view. in and out may be nil for the terminal.
func NewStatusUI(ctx context.Context, model StatusModel, in io.Reader, out io.Writer) *StatusUI {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}

	return &StatusUI{
		program: tea.NewProgram(model, opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background. Done is closed when the user
// quits or ctx ends.
func (u *StatusUI) Start() {
	go func() {
		defer close(u.done)
		_, err := u.program.Run()
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			err = nil
		}
		u.err = err
	}()
}

func (u *StatusUI) Done() <-chan struct{} { return u.done }

// Err is the program's exit error, valid after Done.
func (u *StatusUI) Err() error { return u.err }

func (u *StatusUI) Snapshot(s session.Snapshot) {
	u.program.Send(SnapshotMsg(s))
}

func (u *StatusUI) Link(msg LinkMsg) {
	u.program.Send(msg)
}

// Quit stops the program and waits for it to restore the terminal.
func (u *StatusUI) Quit() {
	u.program.Quit()
	<-u.done
}
