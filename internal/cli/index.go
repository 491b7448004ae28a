package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"policyrag/internal/usecase"
)

var buildCmd = &cobra.Command{
	Use:   "build [corpus]",
	Short: "Process the policy corpus and build the index",
	Long: `Load every supported document in the corpus directory, split it into chunks,
embed the chunks and store the index in .policyrag/index.db.

The corpus defaults to the corpus.dir setting (./policies).

Examples:
  policyrag build
  policyrag build /srv/hr/policies`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexAction(cmd.Context(), "Building", args, (*usecase.Engine).Build)
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [corpus]",
	Short: "Discard the index and build it again",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexAction(cmd.Context(), "Rebuilding", args, (*usecase.Engine).Rebuild)
	},
}

var addCmd = &cobra.Command{
	Use:   "add [corpus]",
	Short: "Append the documents of a corpus to the existing index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexAction(cmd.Context(), "Adding", args, (*usecase.Engine).AddCorpus)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(addCmd)
}

type indexAction func(e *usecase.Engine, ctx context.Context, corpusDir string) (int, error)

func runIndexAction(ctx context.Context, verb string, args []string, action indexAction) error {
	if ctx == nil {
		ctx = context.Background()
	}

	corpus := cfg.CorpusDir(rootDir)
	if len(args) > 0 {
		var err error
		corpus, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(corpus)
	if err != nil {
		return fmt.Errorf("corpus does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus is not a directory: %s", corpus)
	}

	engine, err := openEngine(ctx, newEmbeddingProgress(verb))
	if err != nil {
		return err
	}
	defer engine.Close(ctx)

	fmt.Printf("Scanning %s...\n", corpus)
	start := time.Now()

	n, err := action(engine, ctx, corpus)
	if err != nil {
		return fmt.Errorf("%s index failed: %w", verb, err)
	}

	stats := engine.Status(ctx).Index
	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Chunks processed: %d\n", n)
	fmt.Printf("  Total vectors:    %d\n", stats.TotalVectors)
	fmt.Printf("  Documents:        %d\n", stats.TotalDocuments)
	fmt.Printf("  Model:            %s (%d dims)\n", stats.ModelName, stats.EmbeddingDimension)
	fmt.Printf("  Elapsed:          %s\n", formatDuration(time.Since(start)))
	fmt.Printf("\nIndex stored at: %s\n", cfg.IndexPath(rootDir))
	return nil
}

// newEmbeddingProgress returns a progress callback that draws a bar over
// embedding batches, created once the total is known.
func newEmbeddingProgress(verb string) usecase.ProgressFunc {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil || bar.GetMax() != total {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", verb)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", verb, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
