package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/session"
)

// newClearCmd creates the 'clear' command.
func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Stop tracking the current batch",
		Long: `Remove the durable session record so no batch is tracked anymore.

The batch itself keeps processing on the backend; this only clears the
local tracking state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessPath, err := config.DefaultSessionPath()
			if err != nil {
				return err
			}

			store := session.NewStore(sessPath)
			rec, err := store.Load()
			if err != nil {
				// An unreadable record is exactly what clear removes.
				GetLogger().Warn().Err(err).Msg("Removing unreadable session")
			}

			if err := store.Purge(); err != nil {
				return err
			}

			if rec != nil {
				fmt.Printf("Stopped tracking batch %s\n", rec.BatchID)
			} else {
				fmt.Println("No batch was being tracked.")
			}
			return nil
		},
	}

	return cmd
}
