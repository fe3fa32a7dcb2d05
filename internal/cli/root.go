package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/ui"
	"github.com/BioHazard786/watchparty/internal/version"
)

var (
	flagServer   string
	flagSTUN     []string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagMsgpack  bool
	flagName     string

	flagNegotiationTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchparty",
	Short: "Watch a shared screen together over WebRTC",
	Long: `watchparty connects a host and any number of viewers in a room through a
signaling relay. The host's stream flows directly to every viewer over
WebRTC; the relay only carries the negotiation.`,
	Version: version.Version,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Client, error) {
	cfg, err := config.Load(config.Options{
		ServerURL:   flagServer,
		STUNServers: flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagRelay,

		NegotiationTimeout: flagNegotiationTimeout,
	})
	if err != nil {
		return nil, &Error{Op: "load config", Err: err}
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, &Error{Op: "load config", Err: ErrRelayWithoutTURN}
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the watchparty version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("watchparty " + version.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Relay websocket URL (default ws://localhost:8080/ws)")
	pf.StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVar(&flagRelay, "relay", false, "Force relay mode through TURN")
	pf.BoolVar(&flagMsgpack, "msgpack", false, "Use the binary msgpack signaling codec")
	pf.StringVar(&flagName, "name", "", "Participant id to use in the room (generated if empty)")
	pf.DurationVar(&flagNegotiationTimeout, "negotiation-timeout", 0, "Time allowed for one peer negotiation (default 30s)")

	rootCmd.AddCommand(versionCmd)
}
