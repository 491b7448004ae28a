package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"policyrag/internal/domain"
)

var (
	askQuery     string
	askRequester string
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the policy documents",
	Long: `Retrieve the policy passages relevant to a question and answer it with
citations. Without an index the answer comes from built-in general guidance.

Examples:
  policyrag ask -q "How many vacation days do I get?"
  policyrag ask -q "Can I expense a taxi?" --requester emp-1042 --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question to answer (required)")
	askCmd.Flags().StringVar(&askRequester, "requester", "", "id of the employee asking, for logs")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	engine, err := openEngine(ctx, nil)
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	answer := engine.Ask(ctx, askQuery, askRequester)

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	printAnswer(answer)
	return nil
}

func printAnswer(a domain.QueryAnswer) {
	fmt.Println(a.Message)
	if len(a.Sources) == 0 {
		return
	}
	fmt.Printf("\nSources (confidence %.2f):\n", a.Confidence)
	for i, s := range a.Sources {
		fmt.Printf("  [%d] %s (score: %.3f)\n", i+1, s.Filename, s.Score)
	}
}
