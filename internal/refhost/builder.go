package refhost

import (
	"fmt"

	"github.com/rulecore/compiler/pkg/filterast"
)

// frame accumulates the operands of one nest/unnest span. The compile
// driver's Filter Builder Walk elides nest/unnest around runs of the same
// boolean operator (spec.md §4.5), so a single frame can receive many
// operands joined by repeated bool_op calls of the same operator — it is
// folded into one flat and/or node rather than a deep binary chain.
type frame struct {
	op      filterast.BoolOp
	haveOp  bool
	operand []evalNode
	// implicit marks the root frame top() opens lazily for a bare
	// rel_expr/bool_op call stream with no enclosing Nest(); it is never
	// popped by an Unnest() call, unlike every frame Nest() pushes.
	implicit bool
}

func (f *frame) build() (evalNode, error) {
	if len(f.operand) == 0 {
		return nil, fmt.Errorf("refhost: empty filter group")
	}
	if !f.haveOp {
		if len(f.operand) != 1 {
			return nil, fmt.Errorf("refhost: multiple operands without a boolean operator")
		}
		return f.operand[0], nil
	}
	if f.op == filterast.Not {
		if len(f.operand) != 1 {
			return nil, fmt.Errorf("refhost: 'not' group must have exactly one operand")
		}
		return &notNode{child: f.operand[0]}, nil
	}
	if f.op == filterast.And {
		return &andNode{children: f.operand}, nil
	}
	return &orNode{children: f.operand}, nil
}

// builderParser implements pkg/rulesengine.ParserBuilder. It reconstructs
// an evalNode tree purely from the Nest/Unnest/BoolOp/RelExpr call stream —
// it never sees the filterast.Node the FilterCompiler produced, matching
// how a real host only learns the filter shape through this API.
type builderParser struct {
	stack  []*frame
	result evalNode
}

func newBuilderParser() *builderParser {
	return &builderParser{}
}

// top returns the innermost open frame, lazily opening an implicit root
// frame on first use if the call stream never opened one: the Filter
// Builder Walk (spec.md §4.5) emits a bare rel_expr with no enclosing
// nest/unnest for any rule whose AST root is a single BinaryRelOp/
// UnaryRelOp (a one-atom condition, or a rule that is just a macro
// reference) — Nest() is only skipped for same-operator elision, which
// never applies at the true root, so this is the one case a naive
// "rel_expr outside any nest()" check would wrongly reject.
func (b *builderParser) top() (*frame, error) {
	if len(b.stack) == 0 {
		if b.result != nil {
			return nil, fmt.Errorf("refhost: rel_expr/bool_op call after the filter was already finished")
		}
		b.stack = append(b.stack, &frame{implicit: true})
	}
	return b.stack[len(b.stack)-1], nil
}

func (b *builderParser) Nest() error {
	b.stack = append(b.stack, &frame{})
	return nil
}

func (b *builderParser) Unnest() error {
	if len(b.stack) == 0 {
		return fmt.Errorf("refhost: unnest() without matching nest()")
	}
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	node, err := f.build()
	if err != nil {
		return err
	}
	if len(b.stack) == 0 {
		b.result = node
		return nil
	}
	parent := b.stack[len(b.stack)-1]
	parent.operand = append(parent.operand, node)
	return nil
}

func (b *builderParser) BoolOp(op filterast.BoolOp) error {
	f, err := b.top()
	if err != nil {
		return err
	}
	f.op = op
	f.haveOp = true
	return nil
}

func (b *builderParser) RelExpr(field string, op filterast.RelOp, value any, index int) error {
	f, err := b.top()
	if err != nil {
		return err
	}
	leaf := &relLeaf{field: field, op: op, idx: index}
	switch v := value.(type) {
	case nil:
		// unary test (exists)
	case string:
		leaf.value = v
	case []string:
		leaf.values = v
	default:
		return fmt.Errorf("refhost: rel_expr value has unexpected type %T", value)
	}
	f.operand = append(f.operand, leaf)
	return nil
}

// finish returns the fully reconstructed tree, which must be exactly one
// top-level group (every explicit Nest must have a matching Unnest). A
// single remaining frame with no matching Unnest is the implicit root frame
// top() opens for a bare rel_expr/bool_op call stream; build it in place of
// requiring a closing Unnest() that the walk never emits for that case.
func (b *builderParser) finish() (evalNode, error) {
	if len(b.stack) == 1 && b.result == nil && b.stack[0].implicit {
		node, err := b.stack[0].build()
		if err != nil {
			return nil, err
		}
		b.stack = nil
		b.result = node
	}
	if len(b.stack) != 0 {
		return nil, fmt.Errorf("refhost: %d unclosed nest() group(s)", len(b.stack))
	}
	if b.result == nil {
		return nil, fmt.Errorf("refhost: empty filter program")
	}
	return b.result, nil
}
