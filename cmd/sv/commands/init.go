package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"snapvault/pkg/ignore"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a SnapVault repository",
	Long:  `Create an empty SnapVault repository (.sv directory) in the given path, or the --root directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := rootPath
		if len(args) > 0 {
			target = args[0]
		}
		target, err := filepath.Abs(target)
		if err != nil {
			return err
		}

		repoPath := filepath.Join(target, ignore.MetaDir)
		objectsPath := filepath.Join(repoPath, "objects")

		if _, err := os.Stat(repoPath); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Reinitialized existing SnapVault repository in %s\n", repoPath)
			return os.MkdirAll(objectsPath, 0755)
		}

		if err := os.MkdirAll(objectsPath, 0755); err != nil {
			return fmt.Errorf("failed to create repo directory: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty SnapVault repository in %s\n", repoPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
