package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rulecore/compiler/pkg/describe"
)

var describeCmd = &cobra.Command{
	Use:   "describe <rules-file>",
	Short: "Print human-readable descriptions for loaded rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var describeName string

func init() {
	rootCmd.AddCommand(describeCmd)
	addLoadFlags(describeCmd)
	describeCmd.Flags().StringVar(&schemaFlag, "schema", "", "path to a schema YAML file (required)")
	_ = describeCmd.MarkFlagRequired("schema")
	describeCmd.Flags().StringVar(&describeName, "name", "", "describe only this rule (default: all loaded rules)")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	result, logger, err := loadRules(cmd, args[0])
	if err != nil {
		logger.LogError(err)
		return err
	}
	for _, w := range result.Warnings {
		logger.LogWarning(w)
	}

	var namePtr *string
	if describeName != "" {
		namePtr = &describeName
	}
	out, err := describe.DescribeRule(result.Catalog, namePtr)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
