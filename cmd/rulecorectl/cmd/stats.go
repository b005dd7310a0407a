package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rulecore/compiler/internal/statsstore"
	"github.com/rulecore/compiler/pkg/dispatch"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Export rule statistics",
}

var statsExportCmd = &cobra.Command{
	Use:   "export <rules-file>",
	Short: "Load a rules file and seed its Postgres rule_stats table",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatsExport,
}

var statsDBURL string

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsExportCmd)
	addLoadFlags(statsExportCmd)
	statsExportCmd.Flags().StringVar(&schemaFlag, "schema", "", "path to a schema YAML file (required)")
	_ = statsExportCmd.MarkFlagRequired("schema")
	statsExportCmd.Flags().StringVar(&statsDBURL, "db-url", "", "Postgres connection string (required)")
	_ = statsExportCmd.MarkFlagRequired("db-url")
}

func runStatsExport(cmd *cobra.Command, args []string) error {
	result, logger, err := loadRules(cmd, args[0])
	if err != nil {
		logger.LogError(err)
		return err
	}
	for _, w := range result.Warnings {
		logger.LogWarning(w)
	}

	store, err := statsstore.Open(statsDBURL)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RunMigrations(ctx); err != nil {
		return err
	}
	// export with zeroed counters: this seeds/refreshes metadata for every
	// loaded rule, a running process that actually dispatches events is
	// expected to call UpsertRuleStats again with its live dispatch.Counters.
	if err := store.UpsertRuleStats(ctx, result.Catalog, dispatch.NewCounters()); err != nil {
		return err
	}
	log.Info().Int("rules", len(result.Catalog.RulesByName)).Msg("rule stats exported")
	return nil
}
