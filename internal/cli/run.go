package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohortlens/cohortlens/pkg/cohortlens"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

var (
	runModel      string
	runLabel      string
	runNNeighbors int
	runMinDist    float64
)

var runCmd = &cobra.Command{
	Use:   "run <cohort>",
	Short: "Run the analysis pipeline over a cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var runsCmd = &cobra.Command{
	Use:   "runs <cohort>",
	Short: "List a cohort's analysis runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "embedding model (default from config)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "free-form run label")
	runCmd.Flags().IntVar(&runNNeighbors, "n-neighbors", 0, "projection neighborhood size")
	runCmd.Flags().Float64Var(&runMinDist, "min-dist", 0, "projection minimum distance")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	var params *project.Params
	if runNNeighbors > 0 || runMinDist > 0 {
		p := cfg.Params()
		if runNNeighbors > 0 {
			p.NNeighbors = runNNeighbors
		}
		if runMinDist > 0 {
			p.MinDist = runMinDist
		}
		params = &p
	}

	run, err := app.StartRun(cmd.Context(), args[0], cohortlens.RunOptions{
		EmbeddingModel: runModel,
		Params:         params,
		Label:          runLabel,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Run %d created, executing...\n", run.ID)

	// No background queue in the CLI; execute in place.
	if err := app.Runner().Execute(cmd.Context(), run.ID); err != nil {
		return fmt.Errorf("run %d failed: %w", run.ID, err)
	}
	return printRun(app, cmd, run.ID)
}

func runRuns(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	runs, err := app.ListRuns(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, r := range runs {
		line := fmt.Sprintf("%4d  %-7s  %s  %s", r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04"), r.EmbeddingModel)
		if r.Label != "" {
			line += "  " + r.Label
		}
		fmt.Println(line)
	}
	return nil
}

func printRun(app *cohortlens.App, cmd *cobra.Command, runID int64) error {
	run, err := app.Run(cmd.Context(), runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %d: %s\n", run.ID, run.Status)
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
	if run.Status == store.RunDone {
		docs, derr := app.Documents(cmd.Context(), run.CohortKey)
		if derr == nil {
			var projected int
			for _, d := range docs {
				if d.Status == store.DocProjected {
					projected++
				}
			}
			fmt.Printf("  %d of %d documents projected\n", projected, len(docs))
		}
	}
	return nil
}
