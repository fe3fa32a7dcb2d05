package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/watchparty/internal/client"
	"github.com/BioHazard786/watchparty/internal/dns"
	"github.com/BioHazard786/watchparty/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory()
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Asking the relay...")
		rooms, err := dir.Rooms(cmd.Context())
		stop()
		if err != nil {
			return &Error{Op: "list rooms", Err: err}
		}

		ui.RenderRooms(os.Stdout, rooms)
		return nil
	},
}

var roomCmd = &cobra.Command{
	Use:   "room <id>",
	Short: "Show who is in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := directory()
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Asking the relay...")
		room, err := dir.Room(cmd.Context(), args[0])
		stop()
		if errors.Is(err, client.ErrRoomNotFound) {
			ui.PrintWarning(fmt.Sprintf("Room %s does not exist", args[0]))
			return nil
		}
		if err != nil {
			return &Error{Op: "show room", Err: err}
		}

		fmt.Println(ui.RoomDetailView(room, time.Now()))
		return nil
	},
}

func directory() (*client.Directory, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.NewDirectory(cfg.HTTPBaseURL(), dns.NewResolver()), nil
}

func init() {
	rootCmd.AddCommand(roomsCmd, roomCmd)
}
