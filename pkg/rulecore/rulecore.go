// Package rulecore is the Load API facade (spec.md §6): it wires the
// Source Map, Pass 1 document loader, Pass 2a dependency expander, and
// Pass 2b compiler driver into the single entry point a caller drives, then
// hands back a Catalog ready for dispatch and describe.
package rulecore

import (
	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/compiledriver"
	"github.com/rulecore/compiler/pkg/priority"
	"github.com/rulecore/compiler/pkg/ruleload"
	"github.com/rulecore/compiler/pkg/rulesengine"
)

// Options mirrors spec.md §6's load_rules parameters beyond content/host.
type Options struct {
	Verbose              bool
	AllEvents            bool
	Extra                string
	ReplaceContainerInfo bool
	MinPriority          priority.Num
}

// Result is the full outcome of a Load call.
type Result struct {
	Catalog                 *catalog.Catalog
	RequiredEngineVersion   float64
	RequiredPluginVersions  map[string][]string
	Warnings                []string
}

// Load runs both passes over content against host and fc, returning a fresh
// Catalog. Every call constructs its own Catalog from scratch — there is no
// hidden state shared across calls. Callers who need incremental
// composition across multiple rule files should pass every YAML document
// to a single Load call (one call already accepts multiple `---`-separated
// documents); two separate Load calls never merge.
func Load(content string, host rulesengine.RulesEngineHost, fc rulesengine.FilterCompiler, opts Options) (*Result, error) {
	p1, err := ruleload.Load(content, host, opts.MinPriority)
	if err != nil {
		return nil, err
	}

	p2, err := compiledriver.Compile(p1.Catalog, fc, host, compiledriver.Options{
		Verbose:              opts.Verbose,
		AllEvents:            opts.AllEvents,
		Extra:                opts.Extra,
		ReplaceContainerInfo: opts.ReplaceContainerInfo,
	})
	if err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(p1.Warnings)+len(p2.Warnings))
	warnings = append(warnings, p1.Warnings...)
	warnings = append(warnings, p2.Warnings...)

	return &Result{
		Catalog:                p1.Catalog,
		RequiredEngineVersion:  p1.RequiredEngineVersion,
		RequiredPluginVersions: p1.Catalog.RequiredPluginVersions,
		Warnings:               warnings,
	}, nil
}
