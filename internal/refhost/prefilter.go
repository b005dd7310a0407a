package refhost

import (
	"strings"

	ac "github.com/petar-dambovaliev/aho-corasick"

	"github.com/rulecore/compiler/pkg/filterast"
)

// literalPrefilter is a per-filter Aho-Corasick automaton over the literal
// operands of a compiled filter's substring/membership tests. It lets
// Host.Match do a single cheap scan of the event's flattened
// text before falling back to full evalNode evaluation, the same
// quick-reject role the teacher's LiteralPrefilter plays ahead of its DAG
// evaluation — adapted here from a per-batch automaton over rule
// primitives to a per-filter automaton over one filter's own literals.
type literalPrefilter struct {
	automaton *ac.AhoCorasick
	patterns  []string
}

// buildLiteralPrefilter walks the reconstructed evalNode tree collecting
// the literals of its positive substring/membership tests, then builds one
// automaton covering all of them. A filter that can match without any of
// those literals being present (pure equality/ordering tests, negated tests,
// an or-branch without literals, glob patterns) gets a nil automaton and is
// always fully evaluated.
func buildLiteralPrefilter(root evalNode) *literalPrefilter {
	var patterns []string
	collectLiterals(root, &patterns)
	if len(patterns) == 0 {
		return &literalPrefilter{}
	}
	builder := ac.NewAhoCorasickBuilder(ac.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ac.LeftMostLongestMatch,
	})
	automaton := builder.Build(patterns)
	return &literalPrefilter{automaton: &automaton, patterns: patterns}
}

func collectLiterals(n evalNode, out *[]string) {
	switch v := n.(type) {
	case *andNode:
		for _, c := range v.children {
			collectLiterals(c, out)
		}
	case *orNode:
		var lits []string
		for _, c := range v.children {
			before := len(lits)
			collectLiterals(c, &lits)
			if len(lits) == before {
				return
			}
		}
		*out = append(*out, lits...)
	case *notNode:
		// a negated test never requires a literal to be present
	case *relLeaf:
		switch v.op {
		case filterast.OpContains, filterast.OpIContains, filterast.OpStartsWith, filterast.OpEndsWith:
			if v.value != "" {
				*out = append(*out, v.value)
			}
		case filterast.OpIn, filterast.OpPmatch:
			for _, e := range v.values {
				if e == "" || strings.ContainsAny(e, "*?[]") {
					return
				}
			}
			*out = append(*out, v.values...)
		}
	}
}

// mayMatch is the quick-reject check: if the filter has literals indexed
// and none of them occur anywhere in the event's flattened values, the
// filter cannot possibly match and full evaluation can be skipped.
func (p *literalPrefilter) mayMatch(ev Event) bool {
	if p.automaton == nil {
		return true
	}
	var flat strings.Builder
	for _, v := range ev {
		flat.WriteString(v)
		flat.WriteByte(' ')
	}
	return len(p.automaton.FindAll(flat.String())) > 0
}
