package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/LDM/internal/config"
	"github.com/BartekS5/LDM/internal/migrate"
	"github.com/BartekS5/LDM/internal/store"
	"github.com/BartekS5/LDM/pkg/logger"
)

// tableNames maps model names to their relational tables.
var tableNames = map[string]string{
	migrate.ModelChallengeType:             "challenge_types",
	migrate.ModelTimelineTemplate:          "timeline_templates",
	migrate.ModelChallengeTimelineTemplate: "challenge_timeline_templates",
	migrate.ModelChallenge:                 "challenges",
	migrate.ModelPhase:                     "phases",
}

type migrateFlags struct {
	dataDir   string
	batchSize int
	only      []string
	dryRun    bool
}

func NewMigrateCmd() *cobra.Command {
	flags := &migrateFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the full migration pipeline",
		Long: `Runs every registered migrator in priority order. Batch size is the
main lever for write atomicity: each batch commits or rolls back as a
unit, so a smaller batch size shrinks how many good records one bad
record can take down with it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", "", "Directory holding the export files (overrides DATA_DIRECTORY)")
	cmd.Flags().IntVarP(&flags.batchSize, "batch-size", "b", 0, "Records per batch (overrides BATCH_SIZE)")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "Run only the named models (overrides MIGRATORS_ONLY)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Run the pipeline against an in-memory store, writing nothing")

	return cmd
}

func runMigrate(cmd *cobra.Command, flags *migrateFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.dataDir != "" {
		cfg.DataDirectory = flags.dataDir
	}
	if flags.batchSize > 0 {
		cfg.BatchSize = flags.batchSize
	}
	if len(flags.only) > 0 {
		cfg.MigratorsOnly = flags.only
	}
	if flags.dryRun {
		cfg.DryRun = true
	}

	log, err := logger.New(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	var st store.Store
	if cfg.DryRun || cfg.DBConnString == "" {
		if !cfg.DryRun {
			log.Warn("DB_CONNECTION_STRING not set, using in-memory store")
		}
		st = store.NewMemoryStore()
	} else {
		sqlStore, err := store.OpenSQLServer(cfg.DBConnString, tableNames)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		st = sqlStore
	}

	engine := migrate.NewEngine(cfg, st, log)
	migrate.RegisterAll(engine)

	report, err := engine.Run(cmd.Context())
	printReport(cmd, report)
	return err
}

func printReport(cmd *cobra.Command, report *migrate.RunReport) {
	for _, m := range report.Models {
		cmd.Printf("%-28s processed=%-6d skipped=%-6d created=%-6d updated=%-6d %s\n",
			m.Model, m.Processed, m.Skipped, m.Created, m.Updated,
			m.Duration.Round(time.Millisecond))
	}
	processed, skipped := report.Totals()
	cmd.Printf("total: processed=%d skipped=%d\n", processed, skipped)
}
