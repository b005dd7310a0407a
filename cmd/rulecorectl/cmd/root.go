package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "rulecorectl",
	Short: "Load, describe, and export stats for rulecore rule sets",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogger(logLevel, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}

func configureLogger(level, format string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lv)

	switch format {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
