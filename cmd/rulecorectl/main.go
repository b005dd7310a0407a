// Command rulecorectl is a thin operator CLI over the rulecore library:
// load a rules file against a declared field/source schema, describe the
// loaded rules, or export dispatch counters to Postgres.
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/rulecore/compiler/cmd/rulecorectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("rulecorectl failed")
		os.Exit(1)
	}
}
