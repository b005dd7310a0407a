package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rulecore/compiler/internal/refhost"
	"github.com/rulecore/compiler/pkg/priority"
)

// schemaFile is the on-disk shape a --schema flag points at: the static
// field/source/event-type vocabulary refhost.Host needs to answer
// IsDefinedField/IsSourceValid and estimate num_evttypes.
type schemaFile struct {
	EngineVersion float64             `yaml:"engine_version"`
	Sources       []string            `yaml:"sources"`
	Fields        map[string][]string `yaml:"fields"`
	EventTypes    map[string][]string `yaml:"event_types"`
}

func loadHost(path string) (*refhost.Host, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	var sf schemaFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("parsing schema file: %w", err)
	}
	fields := make(map[string]map[string]bool, len(sf.Fields))
	for source, names := range sf.Fields {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		fields[source] = m
	}
	return refhost.NewHost(fields, sf.Sources, sf.EventTypes, sf.EngineVersion), nil
}

// loadOptions is what load/describe/stats share: every load_rules parameter
// beyond content/host, resolved flag > env (RULECORE_ prefix) > config file
// > default, mirroring the teacher's viper-layered config.LoadConfig.
type loadOptions struct {
	MinPriority          priority.Num
	Verbose              bool
	AllEvents            bool
	Extra                string
	ReplaceContainerInfo bool
}

// addLoadFlags registers the load_rules-shaped flags on cmd.
func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().String("min-priority", "debug", "minimum rule priority to load (emergency..debug)")
	cmd.Flags().Bool("verbose", false, "emit the too-broad-event-type and skip-if-unknown-filter warnings")
	cmd.Flags().Bool("all-events", false, "bypass source validation")
	cmd.Flags().String("extra", "", "extra %container.info text")
	cmd.Flags().Bool("replace-container-info", false, "replace rather than append %container.info")
}

func resolveLoadOptions(cmd *cobra.Command) (loadOptions, error) {
	v := viper.New()
	v.SetDefault("min_priority", "debug")
	v.SetDefault("verbose", false)
	v.SetDefault("all_events", false)
	v.SetDefault("extra", "")
	v.SetDefault("replace_container_info", false)

	v.SetEnvPrefix("RULECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return loadOptions{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.BindPFlag("min_priority", cmd.Flags().Lookup("min-priority")); err != nil {
		return loadOptions{}, err
	}
	if err := v.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
		return loadOptions{}, err
	}
	if err := v.BindPFlag("all_events", cmd.Flags().Lookup("all-events")); err != nil {
		return loadOptions{}, err
	}
	if err := v.BindPFlag("extra", cmd.Flags().Lookup("extra")); err != nil {
		return loadOptions{}, err
	}
	if err := v.BindPFlag("replace_container_info", cmd.Flags().Lookup("replace-container-info")); err != nil {
		return loadOptions{}, err
	}

	minPriority, err := priority.Resolve(v.GetString("min_priority"))
	if err != nil {
		return loadOptions{}, err
	}
	return loadOptions{
		MinPriority:          minPriority,
		Verbose:              v.GetBool("verbose"),
		AllEvents:            v.GetBool("all_events"),
		Extra:                v.GetString("extra"),
		ReplaceContainerInfo: v.GetBool("replace_container_info"),
	}, nil
}
