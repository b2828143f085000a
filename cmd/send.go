package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/files"
	"github.com/peerdrop/peerdrop/internal/session"
	"github.com/peerdrop/peerdrop/internal/ui"
)

const drainTimeout = 30 * time.Second

var (
	flagChunkSize int
	flagTagged    bool
)

var sendCmd = &cobra.Command{
	Use:     "send FILE...",
	Aliases: []string{"s"},
	Short:   "Send files to a receiver",
	Long: `Create a room, print its code and send the files once a receiver joins.

Files are sent one after another over a single data channel.

Examples:
  peerdrop send file1.txt file2.pdf
  peerdrop send --server signal.example.com:8080 video.mp4
  peerdrop send --relay --turn turn.example.com --turn-user u --turn-pass p file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd.Context(), args)
	},
}

func sendFiles(parent context.Context, paths []string) error {
	infos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}
	displayFileTable(infos)

	cfg, err := loadConfig(config.Options{ChunkSize: flagChunkSize, Tagged: flagTagged})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	obs := newTap()
	o := newOrchestrator(cfg, obs)
	defer o.Close()

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	code, err := o.Initiate(ctx)
	if err != nil {
		sp.Error("Could not reach the signaling server")
		return err
	}
	sp.Stop()

	fmt.Println(ui.CodeBoxView(code, cfg.SignalingURL))
	fmt.Println()

	sp = ui.NewWaitingSpinner("Waiting for receiver to join...")
	sp.Start()
	if err := waitConnected(ctx, o, obs); err != nil {
		sp.Error("Connection failed")
		return err
	}
	sp.Success("Receiver connected")

	view := ui.NewTransferView(ui.ModeSend, cancel)
	obs.attach(view)
	view.Start()

	start := time.Now()
	var sent, failed int
	var total int64
	// A file that failed after its meta went out leaves the receiver waiting
	// for bytes, so nothing more can go on this channel.
	var broken bool
	var failures []error

	for _, info := range infos {
		if broken || o.Status() != session.StatusConnected || ctx.Err() != nil {
			failed++
			continue
		}

		src, f, err := files.Open(info)
		if err != nil {
			obs.OnLog(err.Error())
			failures = append(failures, err)
			failed++
			continue
		}

		id, err := o.Send(ctx, src)
		f.Close()
		if err != nil {
			if id != "" {
				view.MarkFailed(id, err)
				broken = true
			}
			failures = append(failures, err)
			failed++
			continue
		}
		sent++
		total += info.Size
	}

	drainCtx, stopDrain := context.WithTimeout(ctx, drainTimeout)
	drainErr := o.Drain(drainCtx)
	stopDrain()

	obs.attach(session.NopObserver{})
	view.Stop()

	if drainErr != nil {
		ui.PrintWarningf("Peer may not have received everything: %v", drainErr)
	}

	printSummary(summaryStatus(failed), sent, failed, total, time.Since(start), nil)
	for _, err := range failures {
		ui.PrintErrorf("%v", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(infos))
	}
	return nil
}

func displayFileTable(infos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(infos))
	for i, f := range infos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	fmt.Println(ui.FileTableView(items))
	ui.PrintInfof("%s %d file(s), %s total", ui.IconFile, len(infos), ui.FormatSize(files.TotalSize(infos)))
}

func summaryStatus(failed int) string {
	if failed > 0 {
		return ui.IconWarning + " Incomplete"
	}
	return ui.IconSuccess + " Complete"
}

func printSummary(status string, count, failed int, total int64, elapsed time.Duration, saved []string) {
	seconds := elapsed.Seconds()
	var speed float64
	if seconds > 0 {
		speed = float64(total) / 1048576.0 / seconds
	}

	fmt.Println()
	ui.RenderTransferSummary("📊 Transfer Summary", ui.TransferSummary{
		Status:    status,
		Files:     count,
		Failed:    failed,
		TotalSize: total,
		Duration:  fmt.Sprintf("%.2f seconds", seconds),
		Speed:     fmt.Sprintf("%.2f MiB/s", speed),
		Saved:     saved,
	})
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntVarP(&flagChunkSize, "chunk-size", "c", 0, "Chunk size in bytes (env CHUNK_SIZE, default 65536)")
	sendCmd.Flags().BoolVar(&flagTagged, "tagged", false, "Tag every chunk with its transfer id (env TAGGED_CHUNKS)")
}
