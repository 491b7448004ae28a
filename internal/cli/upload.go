package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadName string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Add a single document to the index",
	Long: `Extract, chunk and index one document so that it can be cited right away.
The result is printed as JSON.

Examples:
  policyrag upload ./new/remote_work_2026.pdf
  policyrag upload draft.docx --name "Travel Policy"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "document name used in citations (default: file name)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	engine, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	result := engine.Upload(ctx, path, uploadName)

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
	return nil
}
