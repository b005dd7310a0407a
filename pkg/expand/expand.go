// Package expand implements Pass 2a, the dependency expander: it resolves
// list-of-list references in declaration order and marks referenced lists
// used (spec.md §4.4).
package expand

import (
	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/textfmt"
)

// Expanded holds one list's fully expanded item sequence.
type Expanded struct {
	Items []string
}

// Lists expands every list in cat in declaration order, returning a
// name→expanded-items table. Because iteration follows declaration order,
// a list item naming a not-yet-expanded list is treated as a literal — the
// documented forward-reference behavior of spec.md §4.4.
func Lists(cat *catalog.Catalog) map[string]*Expanded {
	out := map[string]*Expanded{}
	for _, name := range cat.OrderedListNames {
		rec := cat.ListsByName[name]
		var items []string
		for _, raw := range rec.Items {
			if ref, ok := out[raw]; ok {
				cat.ListsByName[raw].Used = true
				items = append(items, ref.Items...)
				continue
			}
			items = append(items, textfmt.Quote(raw))
		}
		out[name] = &Expanded{Items: items}
	}
	return out
}

// ToStringMap converts the expansion table into the plain
// map[string][]string shape the FilterCompiler interface expects.
func ToStringMap(expanded map[string]*Expanded) map[string][]string {
	out := make(map[string][]string, len(expanded))
	for name, e := range expanded {
		out[name] = e.Items
	}
	return out
}
