// Package cli implements the cohortctl commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohortlens/cohortlens/pkg/cohortlens"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/config"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/embed"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/storage"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store/memstore"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store/sqlite"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cohortctl",
	Short: "Analyze document cohorts: extract, scrub, embed and project",
	Long: `cohortctl manages document cohorts and their analysis runs.

Example usage:
  cohortctl ingest team-a "resumes/**/*.pdf"   # Upload matching files
  cohortctl run team-a                         # Run the analysis pipeline
  cohortctl neighbors 3 17                     # Nearest documents to doc 17 in run 3`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
			return err
		}
		cfg = config.Default()
		if _, serr := os.Stat("cohortlens.yaml"); serr == nil {
			cfg, err = config.Load("cohortlens.yaml")
		}
		return err
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cohortlens.yaml)")
}

// openApp builds an App from the loaded config. The caller closes it.
func openApp(ctx context.Context) (*cohortlens.App, error) {
	var st store.Store
	var err error
	if cfg.DatabasePath == "" {
		st = memstore.New()
	} else {
		st, err = sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	var embedder embed.Provider
	switch cfg.Embedding.Provider {
	case "fake":
		embedder = embed.Fake{Dim: cfg.Embedding.FakeDim}
	default:
		embedder, err = embed.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), cfg.Embedding.BaseURL)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	return cohortlens.New(cohortlens.Options{
		Store:         st,
		Files:         files,
		Embedder:      embedder,
		DefaultModel:  cfg.Embedding.Model,
		DefaultParams: cfg.Params(),
	}), nil
}
