package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/logging"
	"github.com/peerdrop/peerdrop/internal/server"
	"github.com/peerdrop/peerdrop/internal/signaling"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/ui"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server that pairs senders and receivers.

WebSocket clients connect on /ws (or /), /health answers probes.

Examples:
  peerdrop serve
  peerdrop serve --addr :9000
  LISTEN_ADDR=0.0.0.0:8080 LOG_LEVEL=debug peerdrop serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logrus.InfoLevel)

		cfg, err := loadConfig(config.Options{ListenAddr: flagAddr})
		if err != nil {
			return err
		}

		ui.PrintInfof("%s Signaling server listening on %s", ui.IconServer, cfg.ListenAddr)

		srv := server.New(cfg.ListenAddr, signaling.NewHub())
		if err := srv.Run(cmd.Context()); err != nil {
			return transfer.NewError("serve", err)
		}

		ui.PrintSuccess("Signaling server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (env LISTEN_ADDR, default :8080)")
}
