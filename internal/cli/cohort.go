package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Inspect and manage cohorts",
}

var cohortDocsCmd = &cobra.Command{
	Use:   "docs <cohort>",
	Short: "List a cohort's documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortDocs,
}

var cohortDeleteCmd = &cobra.Command{
	Use:   "delete <cohort>",
	Short: "Delete a cohort, its files and every derived artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortDelete,
}

var cohortAuditCmd = &cobra.Command{
	Use:   "audit <cohort>",
	Short: "Show a cohort's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortAudit,
}

func init() {
	cohortDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	cohortCmd.AddCommand(cohortDocsCmd)
	cohortCmd.AddCommand(cohortDeleteCmd)
	cohortCmd.AddCommand(cohortAuditCmd)
	rootCmd.AddCommand(cohortCmd)
}

func runCohortDocs(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.Documents(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, d := range docs {
		line := fmt.Sprintf("%6d  %-9s  %s", d.ID, d.Status, d.OriginalFilename)
		if d.Error != "" {
			line += "  (" + d.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runCohortDelete(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !deleteYes {
		fmt.Printf("Delete cohort %q and all of its runs? [y/N] ", key)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	actor := ""
	if u, uerr := user.Current(); uerr == nil {
		actor = u.Username
	}
	res, err := app.DeleteCohort(cmd.Context(), key, actor)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d documents\n", res.DocumentsDeleted)
	for _, serr := range res.StorageErrors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", serr)
	}
	return nil
}

func runCohortAudit(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	events, err := app.AuditTrail(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-13s", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Action)
		if ev.Actor != "" {
			line += "  by " + ev.Actor
		}
		fmt.Println(line)
		for k, v := range ev.Detail {
			fmt.Printf("    %s: %v\n", k, v)
		}
	}
	return nil
}
