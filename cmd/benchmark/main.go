package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"policyrag/config"
	"policyrag/internal/logging"
	"policyrag/internal/usecase"
)

// defaultQueries cover the policy areas the retrieval path is tuned for.
var defaultQueries = []string{
	"Can I work from home?",
	"How do I get reimbursed for travel expenses?",
	"What is the code of conduct for harassment?",
	"How many vacation days do I get?",
	"What is the dress code?",
}

func main() {
	dir := flag.String("dir", ".", "Directory holding policyrag.yaml and the index")
	query := flag.String("q", "", "Query to test (default: built-in policy questions)")
	topK := flag.Int("k", 5, "Number of results")
	flag.Parse()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Logging.Level = "error"

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	engine, err := usecase.NewEngine(ctx, cfg, *dir, usecase.EngineOptions{Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close(ctx)

	stats := engine.Status(ctx).Index
	if stats.TotalVectors == 0 {
		fmt.Fprintln(os.Stderr, "No index found - run 'policyrag build' first")
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Vectors indexed: %d (%d documents)\n", stats.TotalVectors, stats.TotalDocuments)
	fmt.Printf("Model: %s (%s)\n", stats.ModelName, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", stats.EmbeddingDimension)
	fmt.Println()

	queries := defaultQueries
	if *query != "" {
		queries = []string{*query}
	}

	var totalTop, totalConfidence float64
	var totalLatency time.Duration
	for _, q := range queries {
		top, latency := runQuery(ctx, engine, q, *topK)
		answer := engine.Ask(ctx, q, "benchmark")
		totalTop += top
		totalConfidence += answer.Confidence
		totalLatency += latency
		fmt.Printf("   Answer confidence: %.3f\n\n", answer.Confidence)
	}

	n := float64(len(queries))
	avgTop := totalTop / n
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average top-1 similarity: %.3f\n", avgTop)
	fmt.Printf("  Average confidence:       %.3f\n", totalConfidence/n)
	fmt.Printf("  Average search latency:   %s\n", totalLatency/time.Duration(len(queries)))

	if avgTop > 0.5 {
		fmt.Println("  Status: GOOD - retrieval working well")
	} else if avgTop > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or a rebuild")
	}
}

// runQuery prints the matches for q and returns the top-1 score.
func runQuery(ctx context.Context, engine *usecase.Engine, q string, k int) (float64, time.Duration) {
	fmt.Printf("Query: %q (enhanced: %q)\n", q, usecase.EnhanceQuery(q))
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := engine.Search(ctx, usecase.EnhanceQuery(q), k)
	latency := time.Since(start)
	if err != nil {
		fmt.Printf("   Search error: %v\n", err)
		return 0, latency
	}
	if len(results) == 0 {
		fmt.Println("   No matches above the score threshold")
		return 0, latency
	}

	for _, r := range results {
		preview := r.Content
		if len([]rune(preview)) > 150 {
			preview = string([]rune(preview)[:150]) + "..."
		}

		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s\n", r.Rank, rating, r.Score, r.ChunkID)
		fmt.Printf("   %s\n", preview)
	}
	return results[0].Score, latency
}
