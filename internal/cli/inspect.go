package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/chunk"
)

var (
	neighborsSection string
	neighborsK       int
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <run-id> <doc-id>",
	Short: "Show the nearest documents by cosine distance",
	Args:  cobra.ExactArgs(2),
	RunE:  runNeighbors,
}

var herdCmd = &cobra.Command{
	Use:   "herd <run-id>",
	Short: "Show the phrases mined across the cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runHerd,
}

func init() {
	neighborsCmd.Flags().StringVar(&neighborsSection, "section", chunk.SectionDoc, "section to compare")
	neighborsCmd.Flags().IntVar(&neighborsK, "k", 5, "number of neighbors")
	rootCmd.AddCommand(neighborsCmd)
	rootCmd.AddCommand(herdCmd)
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad run id %q", args[0])
	}
	docID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad document id %q", args[1])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	nbs, err := app.Neighbors(cmd.Context(), runID, docID, neighborsSection, neighborsK)
	if err != nil {
		return err
	}
	for _, nb := range nbs {
		fmt.Printf("%6d  %.4f  %s\n", nb.DocumentID, nb.Distance, nb.Filename)
	}
	return nil
}

func runHerd(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad run id %q", args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	phrases, err := app.Herd(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(phrases) == 0 {
		fmt.Println("no phrases mined")
		return nil
	}
	for _, p := range phrases {
		fmt.Printf("%5d  %3d docs  %s\n", p.Count, p.DocFreq, p.Phrase)
	}
	return nil
}
