// Package dispatch implements the event dispatcher (spec.md §4.6): given the
// integer rule identifier a RulesEngineHost reports for a match, it looks up
// the owning rule, updates the running counters, and returns what the caller
// needs to render an alert.
package dispatch

import (
	"fmt"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/priority"
)

// Counters tracks match totals across the lifetime of a Catalog.
type Counters struct {
	Total      int
	ByPriority map[priority.Num]int
	ByName     map[string]int
}

// NewCounters returns a zeroed Counters ready to accumulate matches.
func NewCounters() *Counters {
	return &Counters{
		ByPriority: map[priority.Num]int{},
		ByName:     map[string]int{},
	}
}

// Event is what OnEvent returns for a matched rule_id.
type Event struct {
	Name            string
	PriorityNum     priority.Num
	Output          string
	ExceptionFields map[string]struct{}
	Tags            []string
}

// OnEvent looks up ruleID in cat.RulesByIdx, updates c's counters, and
// returns the dispatch-ready Event. Absence of the index, or of the rule's
// name in rules_by_name, is an invariant violation (spec.md §4.6) and
// panics rather than returning an error — there is no recoverable caller
// action for a host reporting a rule_id the core never issued.
func (c *Counters) OnEvent(cat *catalog.Catalog, ruleID int) Event {
	if ruleID < 1 || ruleID >= len(cat.RulesByIdx) || cat.RulesByIdx[ruleID] == nil {
		panic(fmt.Sprintf("dispatch: invariant violation: unknown rule_id %d", ruleID))
	}
	rec := cat.RulesByIdx[ruleID]

	// combined_rule is fetched fresh from rules_by_name (spec.md §4.6): a
	// rule can in principle be replaced between compile and dispatch within
	// a single process lifetime, and the dispatched exception_fields must
	// reflect whatever is currently registered under that name.
	combined, ok := cat.RulesByName[rec.Name]
	if !ok {
		panic(fmt.Sprintf("dispatch: invariant violation: rule %q missing from rules_by_name at dispatch", rec.Name))
	}

	c.Total++
	c.ByPriority[combined.PriorityN]++
	c.ByName[combined.Name]++

	tags := make([]string, 0, len(combined.Tags))
	for t := range combined.Tags {
		tags = append(tags, t)
	}

	return Event{
		Name:            combined.Name,
		PriorityNum:     combined.PriorityN,
		Output:          "*" + combined.Output,
		ExceptionFields: combined.ExceptionFields,
		Tags:            tags,
	}
}
