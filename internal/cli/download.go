package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proptour/proptour-cli/internal/constants"
	"github.com/proptour/proptour-cli/internal/download"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download [batch-id]",
		Short: "Download the finished videos as a zip archive",
		Long: `Download every generated video of a finished batch as one archive.

Without an argument the tracked batch from the last submission is used.
A partially completed batch is downloadable too: the archive carries the
items that did succeed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			a, err := newApp()
			if err != nil {
				return err
			}

			batchID := ""
			if len(args) == 1 {
				batchID = args[0]
			} else {
				rec, err := a.store.Load()
				if err != nil {
					return err
				}
				if rec == nil {
					return download.ErrNoBatch
				}
				batchID = rec.BatchID
			}

			// Check the batch state first so the error message names the
			// actual problem instead of a failed archive fetch.
			status, err := a.api.GetBatchStatus(ctx, batchID)
			if err != nil {
				return err
			}
			switch status.Status {
			case constants.StatusCompleted, constants.StatusPartiallyCompleted:
			default:
				return fmt.Errorf("batch %s is not ready for download (status %s)", batchID, status.Status)
			}

			outputName := output
			if outputName == "" {
				outputName = a.cfg.Generation.OutputName
			}

			gw := download.NewGateway(a.api, a.logger, true)
			path, err := gw.Download(ctx, batchID, outputName)
			if err != nil {
				a.notifier.DownloadFailed(batchID)
				return err
			}

			a.notifier.DownloadComplete(path)
			fmt.Printf("Saved %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive name (default videos_<batch-id>.zip)")

	return cmd
}
