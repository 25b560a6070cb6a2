package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
)

var (
	rerunLabel      string
	rerunNNeighbors int
	rerunMinDist    float64
)

var rerunCmd = &cobra.Command{
	Use:   "rerun <run-id>",
	Short: "Re-project an existing run with new parameters",
	Long: `Create a new run derived from an existing one. The embedding model and
chunking version are inherited; projection parameters can be replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	rerunCmd.Flags().StringVar(&rerunLabel, "label", "", "free-form run label")
	rerunCmd.Flags().IntVar(&rerunNNeighbors, "n-neighbors", 0, "projection neighborhood size")
	rerunCmd.Flags().Float64Var(&rerunMinDist, "min-dist", 0, "projection minimum distance")
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	baseID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad run id %q", args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	var params *project.Params
	if rerunNNeighbors > 0 || rerunMinDist > 0 {
		base, gerr := app.Run(cmd.Context(), baseID)
		if gerr != nil {
			return gerr
		}
		p := base.UMAPParams
		if rerunNNeighbors > 0 {
			p.NNeighbors = rerunNNeighbors
		}
		if rerunMinDist > 0 {
			p.MinDist = rerunMinDist
		}
		params = &p
	}

	run, err := app.Rerun(cmd.Context(), baseID, params, rerunLabel)
	if err != nil {
		return err
	}
	fmt.Printf("Run %d created (rerun of %d), executing...\n", run.ID, baseID)

	if err := app.Runner().Execute(cmd.Context(), run.ID); err != nil {
		return fmt.Errorf("run %d failed: %w", run.ID, err)
	}
	return printRun(app, cmd, run.ID)
}
