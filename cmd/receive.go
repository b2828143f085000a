package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/session"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/ui"
)

var flagDir string

var receiveCmd = &cobra.Command{
	Use:     "receive CODE",
	Aliases: []string{"r"},
	Short:   "Receive files from a sender",
	Long: `Join the sender's room and save every file it sends.

The command keeps receiving until the sender disconnects or q is pressed.

Examples:
  peerdrop receive 483920
  peerdrop receive 483920 --dir ~/Downloads
  peerdrop receive 483920 --server signal.example.com:8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return receiveFiles(cmd.Context(), args[0])
	},
}

func receiveFiles(parent context.Context, code string) error {
	cfg, err := loadConfig(config.Options{OutputDir: flagDir})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	obs := newTap()
	o := newOrchestrator(cfg, obs)
	defer o.Close()

	fmt.Println()
	sp := ui.NewConnectionSpinner(fmt.Sprintf("Joining room %s...", code))
	sp.Start()
	if err := o.Join(ctx, code); err != nil {
		sp.Error("Could not join the room")
		return err
	}
	if err := waitConnected(ctx, o, obs); err != nil {
		sp.Error("Connection failed")
		return err
	}
	sp.Success("Connected to sender")

	view := ui.NewTransferView(ui.ModeReceive, cancel)
	obs.attach(view)
	view.Start()

	start := time.Now()
	saved, total, err := collect(ctx, o, obs, cfg.OutputDir)

	obs.attach(session.NopObserver{})
	view.Stop()

	status := ui.IconSuccess + " Complete"
	if err != nil {
		status = ui.IconWarning + " Interrupted"
	}
	printSummary(status, len(saved), 0, total, time.Since(start), saved)
	if len(saved) > 0 {
		ui.PrintSuccessf("Saved %d file(s) to %s", len(saved), cfg.OutputDir)
	}
	return err
}

// collect saves completed files until the session ends. Ending while a file
// is still arriving is an error.
func collect(ctx context.Context, o *session.Orchestrator, obs *tap, dir string) ([]string, int64, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	var saved []string
	var total int64

	save := func(h *transfer.Handle) {
		path, err := h.SaveTo(dir)
		if err != nil {
			obs.OnLog(err.Error())
			return
		}
		saved = append(saved, path)
		total += h.Size()
		obs.OnLog(fmt.Sprintf("Saved %s", path))
	}

	for {
		for _, h := range obs.takeCompleted() {
			save(h)
		}

		select {
		case <-obs.notify:

		case <-ctx.Done():
			for _, h := range obs.takeCompleted() {
				save(h)
			}
			if obs.inFlight() > 0 {
				return saved, total, transfer.NewError("receive", errCancelled)
			}
			return saved, total, nil

		case <-ticker.C:
			if o.Status() == session.StatusConnected {
				continue
			}
			for _, h := range obs.takeCompleted() {
				save(h)
			}
			if obs.inFlight() > 0 {
				return saved, total, transfer.WrapError("receive", transfer.ErrTransport, obs.reason())
			}
			if len(saved) == 0 {
				return saved, total, errors.New("sender disconnected before sending any file")
			}
			return saved, total, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&flagDir, "dir", "d", "", "Directory to save files in (env OUTPUT_DIR, default .)")
}
