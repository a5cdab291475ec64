package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var commitMsg string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record a snapshot of the working directory",
	Long:  `Snapshot the working directory, create a commit whose parent is HEAD, and move HEAD to it.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if SV == nil {
			return fmt.Errorf("application not initialized")
		}
		if commitMsg == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}

		start := time.Now()
		id, err := SV.History.Commit(cmd.Context(), SV.Root, commitMsg)
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s] %s\n", id.Short(), commitMsg)
		fmt.Fprintf(out, "   Time: %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
}
