package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"snapvault/pkg/core"
	"snapvault/pkg/meta"
	"snapvault/pkg/types"

	"github.com/spf13/cobra"
)

var (
	logFromIndex bool
	logLimit     int

	errLogLimit = errors.New("log limit reached")
)

var logCmd = &cobra.Command{
	Use:   "log [commit]",
	Short: "Show commit logs",
	Long: `Display the commit history starting from the specified commit (or HEAD if not specified).
With --from-index the most recent commits are listed from the metadata database instead of walking parents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if SV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if logFromIndex {
			if SV.Repo == nil {
				return fmt.Errorf("--from-index needs refs.backend sqlite or postgres")
			}
			commits, err := SV.Repo.ListCommits(ctx, logLimit)
			if err != nil {
				return fmt.Errorf("failed to list commits: %w", err)
			}
			for i := range commits {
				if err := printIndexedLog(out, &commits[i]); err != nil {
					return err
				}
			}
			if len(commits) == 0 {
				fmt.Fprintln(out, "No commits yet.")
			}
			return nil
		}

		var from types.Hash
		if len(args) > 0 {
			id, err := SV.DB.Resolve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("invalid commit argument '%s': %w", args[0], err)
			}
			from = id
		}

		count := 0
		err := SV.History.Log(ctx, from, func(id types.Hash, c *core.Commit) error {
			printCommitLog(out, id, c.Tree, c.Parent, c.Text())
			count++
			if logLimit > 0 && count >= logLimit {
				return errLogLimit
			}
			return nil
		})
		if err != nil && !errors.Is(err, errLogLimit) {
			return err
		}
		if count == 0 {
			fmt.Fprintln(out, "No commits yet.")
		}
		return nil
	},
}

// printCommitLog 仿 Git 格式输出
func printCommitLog(w io.Writer, id, tree, parent types.Hash, text string) {
	fmt.Fprintf(w, "commit %s\n", id)
	fmt.Fprintf(w, "tree   %s\n", tree)
	if !parent.IsZero() {
		fmt.Fprintf(w, "parent %s\n", parent)
	}
	fmt.Fprintln(w)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	fmt.Fprintln(w)
}

func printIndexedLog(w io.Writer, m *meta.CommitModel) error {
	parents, err := m.ParentHashes()
	if err != nil {
		return err
	}
	var parent types.Hash
	if len(parents) > 0 {
		parent = parents[0]
	}
	printCommitLog(w, types.Hash(m.Hash), types.Hash(m.TreeHash), parent, m.Message)
	return nil
}

func init() {
	logCmd.Flags().BoolVar(&logFromIndex, "from-index", false, "list commits from the metadata database")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "show at most n commits (0 = all)")
	rootCmd.AddCommand(logCmd)
}
