package commands

import (
	"fmt"
	"os"

	"snapvault/pkg/core"

	"github.com/spf13/cobra"
)

var (
	hashObjectType string
	catFileType    string
	catFilePretty  bool
)

var hashObjectCmd = &cobra.Command{
	Use:   "hash-object <file>",
	Short: "Store a file as an object and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := core.ObjectType(hashObjectType)
		if !kind.Valid() {
			return fmt.Errorf("unknown object type %q", hashObjectType)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		id, err := SV.DB.Put(cmd.Context(), kind, data)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var catFileCmd = &cobra.Command{
	Use:   "cat-file <object>",
	Short: "Print the content of an object",
	Long: `Print the raw content of an object. Short ids (at least 4 hex chars) are accepted.
With --type the object must be of that kind; with --pretty trees and commits are formatted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		id, err := SV.DB.Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid object %q: %w", args[0], err)
		}

		if catFilePretty {
			return SV.Exporter.PrintObject(ctx, id, out)
		}

		var data []byte
		if catFileType != "" {
			data, err = SV.DB.Get(ctx, id, core.ObjectType(catFileType))
		} else {
			_, data, err = SV.DB.Read(ctx, id)
		}
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	},
}

func init() {
	hashObjectCmd.Flags().StringVarP(&hashObjectType, "type", "t", string(core.TypeBlob), "object kind (blob|tree|commit)")
	catFileCmd.Flags().StringVarP(&catFileType, "type", "t", "", "expected object kind; mismatches are an error")
	catFileCmd.Flags().BoolVarP(&catFilePretty, "pretty", "p", false, "pretty-print trees and commits")

	rootCmd.AddCommand(hashObjectCmd, catFileCmd)
}
