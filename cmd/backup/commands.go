package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/semmidev/dbkeeper/internal/app"
	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/usecase"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// NewRootCmd returns the dbkeeper command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "dbkeeper",
		Short:         "Back up, prune and restore MariaDB, PostgreSQL and MSSQL databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.ini", "path to config file")

	load := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return app.New(cmd.Context(), cfg)
	}

	cmd.AddCommand(
		newBackupCmd(load),
		newRestoreCmd(load),
		newValidateCmd(load),
		newListDatabasesCmd(load),
		newHistoryCmd(load),
	)
	return cmd
}

type loader func(cmd *cobra.Command) (*app.App, error)

func newBackupCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up every configured database and apply retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			report := a.Backup(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if n := report.Failures(); n > 0 {
				return fmt.Errorf("%d of %d database(s) failed", n, len(report.Outcomes))
			}
			return nil
		},
	}
}

func newRestoreCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <database>",
		Short: "Restore the newest backup of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			result, err := a.Restore(cmd.Context(), args[0])
			printRestore(cmd.OutOrStdout(), result)
			return err
		},
	}
}

func newValidateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without backing anything up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			failures := a.CheckDatabases()
			printValidation(cmd.OutOrStdout(), failures)
			if len(failures) > 0 {
				return fmt.Errorf("%d database(s) misconfigured", len(failures))
			}
			return nil
		},
	}
}

func newListDatabasesCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "list-databases <database>",
		Short: "List the databases reachable with a configured database's credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			names, err := a.ListDatabases(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newHistoryCmd(load loader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent backup outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			records, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func printReport(w io.Writer, report *usecase.Report) {
	infoColor.Fprintf(w, "\nRun %s finished in %s\n", report.RunID, report.Duration.Round(time.Second))
	for _, o := range report.Outcomes {
		if o.Failed() {
			failColor.Fprintf(w, "  ✗ %-20s %-10s failed at %s: %v\n", o.Database, o.Engine, o.FailedStage, o.Err)
			continue
		}
		okColor.Fprintf(w, "  ✓ %-20s %-10s %s (%s)\n", o.Database, o.Engine, o.Artifact.Location(), o.Stage)
	}
	if report.Deleted > 0 {
		fmt.Fprintf(w, "  %d old backup(s) deleted\n", report.Deleted)
	}
}

func printRestore(w io.Writer, result *usecase.RestoreResult) {
	if result == nil {
		return
	}
	if result.Err != nil {
		failColor.Fprintf(w, "✗ Restore of %s failed at %s: %v\n", result.Database, result.FailedStage, result.Err)
		return
	}
	okColor.Fprintf(w, "✓ Restored %s from %s in %s\n", result.Database, result.Artifact.Key, result.Duration.Round(time.Second))
}

func printValidation(w io.Writer, failures map[string]error) {
	if len(failures) == 0 {
		okColor.Fprintln(w, "✓ Configuration is valid")
		return
	}
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		failColor.Fprintf(w, "✗ %s: %v\n", name, failures[name])
	}
}

func printHistory(w io.Writer, records []domain.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  %-20s %-10s %-8s", rec.StartedAt.UTC().Format(time.RFC3339), rec.Database, rec.Engine, rec.Status)
		if rec.Error != "" {
			failColor.Fprintf(w, "%s %s: %s\n", line, rec.Stage, rec.Error)
			continue
		}
		okColor.Fprintf(w, "%s %s\n", line, rec.Location)
	}
}
