package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <cohort> <glob>",
	Short: "Upload files matching a glob into a cohort",
	Long: `Upload every file matching the glob pattern into the cohort.
Supported file types: .txt, .md, .html, .docx, .pdf.

Examples:
  cohortctl ingest team-a "resumes/*.pdf"
  cohortctl ingest team-a "archive/**/*.docx"`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cohort, pattern := args[0], args[1]

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	var paths []string
	for _, m := range matches {
		info, serr := os.Stat(m)
		if serr != nil || info.IsDir() {
			continue
		}
		paths = append(paths, m)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %q", pattern)
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Uploading"),
	)

	var failed int
	for _, path := range paths {
		f, oerr := os.Open(path)
		if oerr != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, oerr)
			continue
		}
		_, uerr := app.Upload(cmd.Context(), cohort, filepath.Base(path), f)
		f.Close()
		if uerr != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, uerr)
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Uploaded %d of %d files into cohort %q\n", len(paths)-failed, len(paths), cohort)
	if failed > 0 {
		return fmt.Errorf("%d uploads failed", failed)
	}
	return nil
}
