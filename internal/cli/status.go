package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// sampleQuery is searched by status to show the index answers queries.
const sampleQuery = "company policy"

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index health and active backends",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	engine, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	status := engine.Status(ctx)

	if statusJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	mode := "local"
	if status.EnhancedMode {
		mode = "enhanced (remote vector store)"
	}

	fmt.Println("Index status:")
	fmt.Printf("  Mode:          %s\n", mode)
	fmt.Printf("  Generation:    %v\n", status.GenerationEnabled)
	fmt.Printf("  Index exists:  %v\n", status.Index.IndexExists)
	fmt.Printf("  Vectors:       %d\n", status.Index.TotalVectors)
	fmt.Printf("  Documents:     %d\n", status.Index.TotalDocuments)
	fmt.Printf("  Model:         %s (%d dims)\n", status.Index.ModelName, status.Index.EmbeddingDimension)
	if status.EnhancedMode {
		fmt.Printf("  Remote chunks: %d\n", status.RemoteVectors)
	}
	if engine.Stale() {
		fmt.Println("\nWarning: the index was built with different chunking or embedding settings; run 'policyrag rebuild'.")
	}

	if status.Index.TotalVectors == 0 {
		return nil
	}

	results, err := engine.Search(ctx, sampleQuery, 3)
	if err != nil {
		fmt.Printf("\nSample search failed: %v\n", err)
		return nil
	}
	fmt.Printf("\nSample search %q: %d results\n", sampleQuery, len(results))
	for _, r := range results {
		fmt.Printf("  %d. %s (score: %.3f)\n", r.Rank, r.Filename, r.Score)
	}
	return nil
}
