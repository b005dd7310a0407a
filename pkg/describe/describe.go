// Package describe renders human-readable rule summaries and dispatch
// counters (spec.md §4.7).
package describe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/dispatch"
	"github.com/rulecore/compiler/pkg/priority"
)

const nameColumnWidth = 50
const wrapWidth = 60

// DescribeRule renders a header followed by one line per rule: the rule
// name padded to nameColumnWidth, then a word-wrapped description with
// continuation lines indented to align under the description column.
//
// If name is nil, every loaded rule is rendered (order unspecified by
// spec.md §4.7; this implementation uses first-appearance order for
// reproducibility). A non-nil name naming a rule that does not exist is
// fatal.
func DescribeRule(cat *catalog.Catalog, name *string) (string, error) {
	var b strings.Builder
	b.WriteString("Rules:\n")

	if name != nil {
		rec, ok := cat.RulesByName[*name]
		if !ok {
			return "", fmt.Errorf("describe_rule: no such rule %q", *name)
		}
		writeRule(&b, rec)
		return b.String(), nil
	}

	names := make([]string, 0, len(cat.RulesByName))
	for _, n := range cat.OrderedRuleNames {
		if _, ok := cat.RulesByName[n]; ok {
			names = append(names, n)
		}
	}
	for _, n := range names {
		writeRule(&b, cat.RulesByName[n])
	}
	return b.String(), nil
}

func writeRule(b *strings.Builder, rec *catalog.RuleRecord) {
	lines := wordWrap(rec.Desc, wrapWidth)
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(b, "%-*s%s\n", nameColumnWidth, rec.Name, lines[0])
	indent := strings.Repeat(" ", nameColumnWidth)
	for _, line := range lines[1:] {
		fmt.Fprintf(b, "%s%s\n", indent, line)
	}
}

// wordWrap breaks text into lines of at most width characters, breaking
// only at word boundaries. A single word longer than width is kept whole
// on its own line rather than split mid-word.
func wordWrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	lines = append(lines, cur)
	return lines
}

// PrintStats renders the running dispatch counters: the total match count
// followed by per-priority and per-rule-name breakdowns.
func PrintStats(c *dispatch.Counters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "total: %d\n", c.Total)

	b.WriteString("by_priority:\n")
	prios := make([]int, 0, len(c.ByPriority))
	for p := range c.ByPriority {
		prios = append(prios, int(p))
	}
	sort.Ints(prios)
	for _, p := range prios {
		fmt.Fprintf(&b, "  %d: %d\n", p, c.ByPriority[priority.Num(p)])
	}

	b.WriteString("by_name:\n")
	names := make([]string, 0, len(c.ByName))
	for n := range c.ByName {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "  %s: %d\n", n, c.ByName[n])
	}

	return b.String()
}
