package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proptour/proptour-cli/internal/download"
	"github.com/proptour/proptour-cli/internal/session"
	"github.com/proptour/proptour-cli/internal/watcher"
)

// newWatchCmd creates the 'watch' command.
func newWatchCmd() *cobra.Command {
	var andDownload bool

	cmd := &cobra.Command{
		Use:   "watch [batch-id]",
		Short: "Track a batch until it finishes",
		Long: `Track batch progress until the backend reports a terminal status.

Without an argument the tracked batch from the last submission is
resumed: its live status is verified once, then the command either
reports the already-finished outcome, resumes polling, or clears the
stale session if the batch cannot be verified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			a, err := newApp()
			if err != nil {
				return err
			}

			a.startBridge(ctx)

			if len(args) == 1 {
				batchID := args[0]
				if err := a.store.Save(&session.Record{BatchID: batchID}); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to persist session")
				}
				return a.pollToCompletion(ctx, batchID, andDownload)
			}

			decision, err := session.Resume(ctx, a.store, a.api, a.logger)
			if err != nil {
				return err
			}

			switch decision.Action {
			case session.ActionIdle:
				fmt.Println("No batch is being tracked.")
				return nil

			case session.ActionSettle:
				a.watch.Settle(decision.BatchID, decision.Status, decision.Progress)
				snap := a.watch.Snapshot()
				if snap.Phase == watcher.PhaseCompleted {
					fmt.Printf("Batch %s completed\n", decision.BatchID)
				}
				return a.finishBatch(ctx, decision.BatchID, snap, andDownload)

			default:
				return a.pollToCompletion(ctx, decision.BatchID, andDownload)
			}
		},
	}

	cmd.Flags().BoolVar(&andDownload, "download", false, "Download the archive once the batch completes")

	return cmd
}

func (a *app) pollToCompletion(ctx context.Context, batchID string, andDownload bool) error {
	snap := a.watchUntilDone(ctx, func() {
		a.watch.Watch(ctx, batchID)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return a.finishBatch(ctx, batchID, snap, andDownload)
}

// finishBatch turns the terminal snapshot into the command outcome. A
// partially completed batch still downloads when asked: the archive carries
// the items that did succeed.
func (a *app) finishBatch(ctx context.Context, batchID string, snap watcher.Snapshot, andDownload bool) error {
	if snap.Phase == watcher.PhaseFailed {
		if snap.Reason == watcher.ReasonPartiallyCompleted && andDownload {
			return a.downloadArchive(ctx, batchID)
		}
		return fmt.Errorf("batch %s did not complete (%s)", batchID, snap.Reason)
	}

	if andDownload {
		return a.downloadArchive(ctx, batchID)
	}
	return nil
}

func (a *app) downloadArchive(ctx context.Context, batchID string) error {
	gw := download.NewGateway(a.api, a.logger, true)
	path, err := gw.Download(ctx, batchID, a.cfg.Generation.OutputName)
	if err != nil {
		a.notifier.DownloadFailed(batchID)
		return err
	}
	a.notifier.DownloadComplete(path)
	fmt.Printf("Saved %s\n", path)
	return nil
}
