package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <commit>",
	Short: "Restore the working directory to a commit",
	Long: `Overwrite the working directory with the snapshot of the specified commit and point HEAD at it.
Uncommitted changes are lost.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if SV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		start := time.Now()

		id, err := SV.DB.Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid commit '%s': %w", args[0], err)
		}

		if err := SV.History.Checkout(ctx, SV.Root, id); err != nil {
			return fmt.Errorf("checkout failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Switched to commit %s in %s\n", id.Short(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}
