package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peerdrop/peerdrop/internal/ui"
	"github.com/peerdrop/peerdrop/internal/version"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peerdrop",
	Short: "Peer-to-peer file transfer over WebRTC data channels",
	Long: `peerdrop sends files directly between two machines. A small signaling
server pairs the peers through a 6-digit room code; the files themselves
travel over a WebRTC data channel and never touch the server.

  peerdrop serve                 run the signaling server
  peerdrop send report.pdf       create a room and send files
  peerdrop receive 483920        join a room and save incoming files`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(ui.ErrorBoxView(err, "Run with LOG_LEVEL=debug for details."))
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Signaling server URL or host:port (env SIGNALING_URL)")
	pf.StringVar(&flagSTUN, "stun", "", "Custom STUN server (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "Custom TURN server (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.BoolVar(&flagRelay, "relay", false, "Force relay mode through the TURN server")
}
