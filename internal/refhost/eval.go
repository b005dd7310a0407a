package refhost

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rulecore/compiler/pkg/filterast"
)

// Event is the field->value view refhost evaluates filters against. Real
// hosts would carry a richer typed event; this reference implementation
// only needs string-valued fields to exercise the compiled filter API.
type Event map[string]string

// evalNode is refhost's own small evaluable tree, built by replaying the
// Filter Builder Walk's nest/unnest/bool_op/rel_expr stream (builder.go)
// rather than by walking the filterast.Node the FilterCompiler produced —
// a real host never sees that AST directly, only the builder calls.
type evalNode interface {
	eval(ev Event) (bool, error)
	index() int
}

type andNode struct{ children []evalNode }

func (n *andNode) eval(ev Event) (bool, error) {
	for _, c := range n.children {
		ok, err := c.eval(ev)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
func (n *andNode) index() int { return childIndex(n.children) }

type orNode struct{ children []evalNode }

func (n *orNode) eval(ev Event) (bool, error) {
	for _, c := range n.children {
		ok, err := c.eval(ev)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
func (n *orNode) index() int { return childIndex(n.children) }

type notNode struct{ child evalNode }

func (n *notNode) eval(ev Event) (bool, error) {
	ok, err := n.child.eval(ev)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
func (n *notNode) index() int { return n.child.index() }

func childIndex(children []evalNode) int {
	for _, c := range children {
		if idx := c.index(); idx != 0 {
			return idx
		}
	}
	return 0
}

// relLeaf is one rel_expr call: a single relational/existence test against
// one event field.
type relLeaf struct {
	field  string
	op     filterast.RelOp
	value  string   // set for scalar operators
	values []string // set for list operators (in/intersects/pmatch)
	idx    int
}

func (n *relLeaf) index() int { return n.idx }

func (n *relLeaf) eval(ev Event) (bool, error) {
	v, present := ev[n.field]

	switch n.op {
	case filterast.OpExists:
		return present, nil
	case filterast.OpEq, filterast.OpEqEq:
		return v == n.value, nil
	case filterast.OpNeq:
		return v != n.value, nil
	case filterast.OpContains:
		return strings.Contains(v, n.value), nil
	case filterast.OpIContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(n.value)), nil
	case filterast.OpStartsWith:
		return strings.HasPrefix(v, n.value), nil
	case filterast.OpEndsWith:
		return strings.HasSuffix(v, n.value), nil
	case filterast.OpGlob:
		matched, err := path.Match(n.value, v)
		if err != nil {
			return false, fmt.Errorf("refhost: invalid glob %q: %w", n.value, err)
		}
		return matched, nil
	case filterast.OpLt, filterast.OpLe, filterast.OpGt, filterast.OpGe:
		return compareOrdered(v, n.value, n.op)
	case filterast.OpIn:
		for _, e := range n.values {
			if v == e {
				return true, nil
			}
		}
		return false, nil
	case filterast.OpIntersects:
		parts := strings.Split(v, ",")
		for _, p := range parts {
			for _, e := range n.values {
				if strings.TrimSpace(p) == e {
					return true, nil
				}
			}
		}
		return false, nil
	case filterast.OpPmatch:
		for _, pat := range n.values {
			if ok, _ := path.Match(pat, v); ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("refhost: unsupported operator %q", n.op)
	}
}

func compareOrdered(a, b string, op filterast.RelOp) (bool, error) {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	var cmp int
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(a, b)
	}
	switch op {
	case filterast.OpLt:
		return cmp < 0, nil
	case filterast.OpLe:
		return cmp <= 0, nil
	case filterast.OpGt:
		return cmp > 0, nil
	case filterast.OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("refhost: not an ordered operator: %q", op)
	}
}
