package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"policyrag/config"
	"policyrag/internal/logging"
	"policyrag/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "policyrag",
	Short: "Policy knowledge retrieval - answer employee questions from policy documents",
	Long: `policyrag indexes a folder of policy documents (PDF, DOCX, Markdown, text),
retrieves the passages relevant to an employee question, and answers it with
citations to the source documents.

Example usage:
  policyrag build ./policies                 # Build the index
  policyrag ask -q "Can I work from home?"   # Ask a question
  policyrag upload handbook.pdf              # Add one document
  policyrag status                           # Show index health`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./policyrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

// openEngine builds the engine for the current directory and config.
func openEngine(ctx context.Context, progress usecase.ProgressFunc) (*usecase.Engine, error) {
	if err := config.EnsureIndexDir(cfg.IndexPath(rootDir)); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	engine, err := usecase.NewEngine(ctx, cfg, rootDir, usecase.EngineOptions{
		Logger:   logger,
		Progress: progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return engine, nil
}
