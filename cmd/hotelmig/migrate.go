package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <profile> <phase>...",
	Short: "Run phases of a profile in the given order",
	Long: `Run one or more migration phases against a profile. Phases:

  users, partners, products, folios, reservations, services,
  payments, payment-returns, invoices, clean-up

Each phase gets its own run id. Records already migrated are skipped, so a
phase can be run again after fixing the data that made records fail.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		phases := make([]migration.Phase, 0, len(args)-1)
		for _, name := range args[1:] {
			phase, err := migration.ParsePhase(name)
			if err != nil {
				return err
			}
			phases = append(phases, phase)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.profile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("profile %s: %w", args[0], err)
		}

		reports := make([]migration.PhaseReport, 0, len(phases))
		for _, phase := range phases {
			report, err := a.orch.RunPhase(cmd.Context(), p.ID, phase)
			if report != nil {
				reports = append(reports, *report)
			}
			if err != nil {
				printJSON(reports)
				return err
			}
		}
		return printJSON(reports)
	},
}

var migrateAllCmd = &cobra.Command{
	Use:   "migrate-all <profile>",
	Short: "Run every phase in order under one run id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.profile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("profile %s: %w", args[0], err)
		}

		reports, err := a.orch.RunAll(cmd.Context(), p.ID)
		if printErr := printJSON(reports); err == nil {
			err = printErr
		}
		return err
	},
}

var logFlags struct {
	runID  string
	entity string
	level  string
	limit  int
}

var logCmd = &cobra.Command{
	Use:   "log <profile>",
	Short: "Show a profile's migration log, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := storage.LogFilter{
			RunID: logFlags.runID,
			Level: models.LogLevel(logFlags.level),
			Limit: logFlags.limit,
		}
		if logFlags.entity != "" {
			e, ok := models.ParseEntityType(logFlags.entity)
			if !ok {
				return fmt.Errorf("unknown entity %q", logFlags.entity)
			}
			filter.EntityType = e
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.profile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("profile %s: %w", args[0], err)
		}
		filter.ProfileID = p.ID

		entries, err := a.store.ListLog(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

func init() {
	logCmd.Flags().StringVar(&logFlags.runID, "run", "", "only this run id")
	logCmd.Flags().StringVar(&logFlags.entity, "entity", "", "only this entity type")
	logCmd.Flags().StringVar(&logFlags.level, "level", "", "warning or failure")
	logCmd.Flags().IntVar(&logFlags.limit, "limit", 100, "maximum entries, 0 for all")
}
