package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rulecore/compiler/diag"
	"github.com/rulecore/compiler/internal/refhost"
	"github.com/rulecore/compiler/pkg/rulecore"
)

var loadCmd = &cobra.Command{
	Use:   "load <rules-file>",
	Short: "Load and compile a rules file against a schema, reporting warnings",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

var schemaFlag string

func init() {
	rootCmd.AddCommand(loadCmd)
	addLoadFlags(loadCmd)
	loadCmd.Flags().StringVar(&schemaFlag, "schema", "", "path to a schema YAML file (required)")
	_ = loadCmd.MarkFlagRequired("schema")
}

func runLoad(cmd *cobra.Command, args []string) error {
	result, logger, err := loadRules(cmd, args[0])
	if err != nil {
		logger.LogError(err)
		return err
	}
	for _, w := range result.Warnings {
		logger.LogWarning(w)
	}
	log.Info().Int("rules", len(result.Catalog.RulesByName)).Float64("required_engine_version", result.RequiredEngineVersion).Msg("rules loaded")
	return nil
}

// loadRules is shared by load/describe/stats export: build the reference
// host+compiler from --schema, read the rules file, and run rulecore.Load.
func loadRules(cmd *cobra.Command, rulesPath string) (*rulecore.Result, diag.Logger, error) {
	logger := diag.NewZerologLogger(log.Logger)

	host, err := loadHost(schemaFlag)
	if err != nil {
		return nil, logger, fmt.Errorf("loading schema: %w", err)
	}
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, logger, fmt.Errorf("reading rules file: %w", err)
	}
	opts, err := resolveLoadOptions(cmd)
	if err != nil {
		return nil, logger, fmt.Errorf("resolving options: %w", err)
	}

	result, err := rulecore.Load(string(content), host, refhost.Compiler{}, rulecore.Options{
		Verbose:              opts.Verbose,
		AllEvents:            opts.AllEvents,
		Extra:                opts.Extra,
		ReplaceContainerInfo: opts.ReplaceContainerInfo,
		MinPriority:          opts.MinPriority,
	})
	if err != nil {
		return nil, logger, err
	}
	return result, logger, nil
}
