package commands

import (
	"fmt"

	"snapvault/pkg/types"

	"github.com/spf13/cobra"
)

var readTreeVerbose bool

var writeTreeCmd = &cobra.Command{
	Use:   "write-tree",
	Short: "Snapshot the working directory and print the tree id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := SV.Builder.WriteTree(cmd.Context(), SV.Root)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var readTreeCmd = &cobra.Command{
	Use:   "read-tree <tree>",
	Short: "Replace the working directory with the content of a tree",
	Long: `Delete every non-ignored file in the working directory, then write out the files of the given tree.
Uncommitted changes are lost.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := SV.DB.Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid tree %q: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		count := 0
		err = SV.Exporter.ReadTreeFunc(ctx, id, SV.Root, func(path string, _ types.Hash) {
			count++
			if readTreeVerbose {
				fmt.Fprintln(out, path)
			}
		})
		if err != nil {
			return fmt.Errorf("read-tree failed: %w", err)
		}
		fmt.Fprintf(out, "Restored %d files from %s\n", count, id.Short())
		return nil
	},
}

func init() {
	readTreeCmd.Flags().BoolVarP(&readTreeVerbose, "verbose", "v", false, "print each restored path")
	rootCmd.AddCommand(writeTreeCmd, readTreeCmd)
}
