// Package catalog holds the process-wide state accumulated by a rules load:
// macros, lists, and rules by name, their first-appearance order, and the
// dense rule-index table populated during compilation.
package catalog

import (
	"fmt"

	"github.com/rulecore/compiler/pkg/filterast"
	"github.com/rulecore/compiler/pkg/priority"
)

// ListItem is a single literal string contributed to a list.
type ListItem = string

// ListRecord is one named, ordered sequence of list items.
type ListRecord struct {
	Name    string
	Items   []ListItem
	Append  bool
	Context string
	Used    bool
}

// MacroRecord is one named filter sub-expression.
type MacroRecord struct {
	Name      string
	Condition string
	Source    string
	Append    bool
	Context   string
	Used      bool
	AST       filterast.Node
}

// ExceptionItem is one declarative exception record attached to a rule.
//
// Fields/Comps/Values follow spec.md §3: Fields and Comps are either a
// single scalar or an ordered sequence of equal length; Values is an
// ordered sequence whose element shape depends on Fields' arity.
type ExceptionItem struct {
	Name   string
	Fields []string // len==1 for single-field exceptions
	Comps  []string // len==len(Fields)
	Values []ExceptionValue
}

// ExceptionValue is one row of an exception's values list. For single-field
// exceptions Scalar is populated; for multi-field exceptions Tuple holds one
// value per field (or, exceptionally, a tuple nested inside a single slot —
// see pkg/exceptions for the rendering rules).
type ExceptionValue struct {
	Scalar string
	Tuple  []any // each element is either a string or a []string (nested tuple)
}

// RuleRecord is one named rule.
type RuleRecord struct {
	Name      string
	Condition string
	Output    string
	Desc      string
	Priority  string
	PriorityN priority.Num
	Source    string
	Tags      map[string]struct{}
	Exceptions []ExceptionItem
	Enabled   bool
	SkipIfUnknownFilter bool
	WarnEvttypes bool
	Append    bool
	Context   string

	// Derived during Pass 2b (pkg/compiledriver).
	CompileCondition string
	ExceptionFields  map[string]struct{}
}

// Catalog is the process-wide state for the duration of one load.
type Catalog struct {
	MacrosByName map[string]*MacroRecord
	ListsByName  map[string]*ListRecord
	RulesByName  map[string]*RuleRecord

	// SkippedRulesByName holds rules dropped by the priority threshold; they
	// still accept append/enabled toggles silently (spec.md I5).
	SkippedRulesByName map[string]*RuleRecord

	OrderedMacroNames []string
	OrderedListNames  []string
	OrderedRuleNames  []string

	// RulesByIdx is the dense 1-based array of compiled rule owners.
	// Index 0 is unused.
	RulesByIdx []*RuleRecord
	NRules     int

	RequiredEngineVersion   float64
	RequiredPluginVersions  map[string][]string
}

// New returns an empty Catalog ready for Pass 1.
func New() *Catalog {
	return &Catalog{
		MacrosByName:           map[string]*MacroRecord{},
		ListsByName:            map[string]*ListRecord{},
		RulesByName:            map[string]*RuleRecord{},
		SkippedRulesByName:     map[string]*RuleRecord{},
		RequiredPluginVersions: map[string][]string{},
		RulesByIdx:             []*RuleRecord{nil},
	}
}

// ResetForCompile clears the host-side/compiled state ahead of Pass 2b:
// n_rules, rules_by_idx, and every macro/list/rule compiled artifact — but
// preserves the by-name tables populated in Pass 1, per spec.md §3
// "Lifecycles".
func (c *Catalog) ResetForCompile() {
	c.NRules = 0
	c.RulesByIdx = []*RuleRecord{nil}
	for _, m := range c.MacrosByName {
		m.Used = false
		m.AST = nil
	}
	for _, l := range c.ListsByName {
		l.Used = false
	}
	for _, r := range c.RulesByName {
		r.CompileCondition = ""
		r.ExceptionFields = nil
	}
}

// AddCompiledRule records rule r as occupying the next dense index and
// returns that index.
func (c *Catalog) AddCompiledRule(r *RuleRecord) int {
	c.NRules++
	c.RulesByIdx = append(c.RulesByIdx, r)
	return c.NRules
}

// CheckInvariants validates I1-I3. I4 and I5 describe expansion-time and
// load-time behavior and are not re-derived from final state. Intended for
// tests.
func (c *Catalog) CheckInvariants() error {
	seen := map[string]int{}
	for _, n := range c.OrderedRuleNames {
		seen[n]++
	}
	for n := range c.RulesByName {
		if seen[n] != 1 {
			return fmt.Errorf("I1 violated: rule %q appears %d times in ordered_rule_names", n, seen[n])
		}
	}
	for n := range c.RulesByName {
		if _, skipped := c.SkippedRulesByName[n]; skipped {
			return fmt.Errorf("I2 violated: rule %q is both loaded and skipped", n)
		}
	}
	if len(c.RulesByIdx)-1 != c.NRules {
		return fmt.Errorf("I3 violated: len(rules_by_idx)-1=%d != n_rules=%d", len(c.RulesByIdx)-1, c.NRules)
	}
	for i := 1; i <= c.NRules; i++ {
		r := c.RulesByIdx[i]
		if r == nil {
			return fmt.Errorf("I3 violated: rules_by_idx[%d] is nil", i)
		}
		if c.RulesByName[r.Name] != r {
			return fmt.Errorf("I3 violated: rules_by_idx[%d]=%q not present in rules_by_name", i, r.Name)
		}
	}
	return nil
}
