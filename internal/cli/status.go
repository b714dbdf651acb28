package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proptour/proptour-cli/internal/api"
	"github.com/proptour/proptour-cli/internal/progress"
)

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [batch-id]",
		Short: "Show the current state of a batch",
		Long: `Fetch the batch status once and print it.

Without an argument the tracked batch from the last submission is used.`,
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
					fmt.Println("No batch is being tracked.")
					return nil
				}
				batchID = rec.BatchID
			}

			status, err := a.api.GetBatchStatus(ctx, batchID)
			if err != nil {
				if api.IsBatchGone(err) {
					// Only stale tracked sessions are purged; an explicit
					// batch-id argument never touches the session file.
					if len(args) == 0 {
						_ = a.store.Purge()
					}
					return fmt.Errorf("batch %s is no longer known to the backend", batchID)
				}
				return err
			}

			fmt.Println(progress.RenderStatusLine(batchID, status))
			for _, d := range status.JobDetails {
				line := fmt.Sprintf("  %-30s %-12s %3d%%", d.Filename, d.Status, d.Progress)
				if d.Error != "" {
					line += "  " + d.Error
				}
				fmt.Println(line)
			}

			return nil
		},
	}

	return cmd
}
