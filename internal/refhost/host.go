package refhost

import (
	"fmt"

	"github.com/rulecore/compiler/pkg/filterast"
	"github.com/rulecore/compiler/pkg/rulesengine"
)

// registeredFilter is one compiled-and-registered rule, as seen entirely
// through the ParserBuilder API — Host never touches the filterast.Node a
// FilterCompiler produced.
type registeredFilter struct {
	ruleName  string
	source    string
	tags      []string
	root      evalNode
	prefilter *literalPrefilter
}

// Host is a reference implementation of rulesengine.RulesEngineHost. It
// owns a static schema (defined fields and valid sources per source, plus
// the known event-type vocabulary a "syscall" source's evt.type values
// range over, needed to estimate num_evttypes for the too-broad-match
// warning) and the filters registered against it by a compiledriver run.
type Host struct {
	Fields       map[string]map[string]bool
	ValidSources map[string]bool
	EventTypes   map[string][]string
	Version      float64

	filters map[string][]*registeredFilter
	enabled map[string]bool
}

// NewHost returns a Host ready for a compiledriver.Compile call.
func NewHost(fields map[string]map[string]bool, validSources []string, eventTypes map[string][]string, version float64) *Host {
	vs := make(map[string]bool, len(validSources))
	for _, s := range validSources {
		vs[s] = true
	}
	return &Host{
		Fields: fields, ValidSources: vs, EventTypes: eventTypes, Version: version,
		filters: map[string][]*registeredFilter{},
		enabled: map[string]bool{},
	}
}

var _ rulesengine.RulesEngineHost = (*Host)(nil)

func (h *Host) EngineVersion() float64 { return h.Version }

func (h *Host) IsDefinedField(source, name string) bool {
	fields, ok := h.Fields[source]
	if !ok {
		return false
	}
	return fields[name]
}

func (h *Host) IsSourceValid(source string) bool { return h.ValidSources[source] }

// IsFormatValid always accepts: output-template grammar validation belongs
// to the downstream formatter/renderer, which is out of this reference
// host's scope.
func (h *Host) IsFormatValid(source, template string) error { return nil }

func (h *Host) ClearFilters() {
	h.filters = map[string][]*registeredFilter{}
	h.enabled = map[string]bool{}
}

func (h *Host) CreateParser(source string) (rulesengine.ParserBuilder, error) {
	if !h.ValidSources[source] {
		return nil, fmt.Errorf("refhost: unknown source %q", source)
	}
	return newBuilderParser(), nil
}

func (h *Host) AddFilter(p rulesengine.ParserBuilder, ruleName, source string, tags []string) (int, error) {
	bp, ok := p.(*builderParser)
	if !ok {
		return 0, fmt.Errorf("refhost: AddFilter called with a parser handle this host did not create")
	}
	root, err := bp.finish()
	if err != nil {
		return 0, err
	}
	rf := &registeredFilter{
		ruleName:  ruleName,
		source:    source,
		tags:      tags,
		root:      root,
		prefilter: buildLiteralPrefilter(root),
	}
	h.filters[source] = append(h.filters[source], rf)
	if _, ok := h.enabled[ruleName]; !ok {
		h.enabled[ruleName] = true
	}
	return h.numEvtTypes(source, root), nil
}

// numEvtTypes estimates how many known event types a filter's evt.type
// constraints admit: an explicit equality/membership test narrows to the
// matched names, anything else (or no evt.type test at all) is considered
// to match every known event type for source.
func (h *Host) numEvtTypes(source string, root evalNode) int {
	known := h.EventTypes[source]
	if len(known) == 0 {
		return 0
	}
	names, constrained := collectEvtTypeLiterals(root)
	if !constrained {
		return len(known)
	}
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	count := 0
	for n := range names {
		if knownSet[n] {
			count++
		}
	}
	return count
}

func collectEvtTypeLiterals(n evalNode) (map[string]bool, bool) {
	out := map[string]bool{}
	found := false
	var walk func(evalNode)
	walk = func(n evalNode) {
		switch v := n.(type) {
		case *andNode:
			for _, c := range v.children {
				walk(c)
			}
		case *orNode:
			for _, c := range v.children {
				walk(c)
			}
		case *notNode:
			walk(v.child)
		case *relLeaf:
			if v.field != "evt.type" {
				return
			}
			switch v.op {
			case filterast.OpEq, filterast.OpEqEq:
				found = true
				out[v.value] = true
			case filterast.OpIn:
				found = true
				for _, e := range v.values {
					out[e] = true
				}
			}
		}
	}
	walk(n)
	return out, found
}

func (h *Host) EnableRule(ruleName string, enabled bool) {
	h.enabled[ruleName] = enabled
}

// Match evaluates every registered, enabled filter for source against ev
// and returns the rule indices (as stamped by filterast.StampRelationalNodes)
// that matched, in registration order.
func (h *Host) Match(source string, ev Event) ([]int, error) {
	var matched []int
	for _, rf := range h.filters[source] {
		if !h.enabled[rf.ruleName] {
			continue
		}
		if !rf.prefilter.mayMatch(ev) {
			continue
		}
		ok, err := rf.root.eval(ev)
		if err != nil {
			return nil, fmt.Errorf("refhost: evaluating rule %q: %w", rf.ruleName, err)
		}
		if ok {
			matched = append(matched, rf.root.index())
		}
	}
	return matched, nil
}
