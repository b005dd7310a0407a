// Package filterast models the AST handed back by the external filter
// compiler: a small tagged sum of boolean and relational nodes. The core
// never constructs these nodes itself for evaluation purposes — it only
// stamps relational nodes with a rule index and walks them to drive a
// RulesEngineHost's filter-builder API.
package filterast

// Node is any AST node a FilterCompiler can return. It is a closed sum:
// BinaryBoolOp, UnaryBoolOp, BinaryRelOp, UnaryRelOp, Value, or List. Any
// other concrete type reaching a switch over Node is an invariant
// violation (spec.md §7, "unexpected AST node type").
type Node interface {
	isNode()
}

// BoolOp names a boolean combinator.
type BoolOp string

const (
	And BoolOp = "and"
	Or  BoolOp = "or"
	Not BoolOp = "not"
)

// RelOp names a relational/comparison operator. The defined set matches
// spec.md §4.2's operator table.
type RelOp string

const (
	OpEq         RelOp = "="
	OpEqEq       RelOp = "=="
	OpNeq        RelOp = "!="
	OpLe         RelOp = "<="
	OpGe         RelOp = ">="
	OpLt         RelOp = "<"
	OpGt         RelOp = ">"
	OpContains   RelOp = "contains"
	OpIContains  RelOp = "icontains"
	OpGlob       RelOp = "glob"
	OpStartsWith RelOp = "startswith"
	OpEndsWith   RelOp = "endswith"
	OpIn         RelOp = "in"
	OpIntersects RelOp = "intersects"
	OpPmatch     RelOp = "pmatch"

	// OpExists is the bare-field unary test spec.md §4.5 names as an
	// example UnaryRelOp ("fd.num exists"); it has no entry in §4.2's
	// binary comparison table since it takes no right-hand side.
	OpExists RelOp = "exists"
)

// ListOperators is the subset of RelOp whose right-hand side is a list.
var ListOperators = map[RelOp]bool{
	OpIn:         true,
	OpIntersects: true,
	OpPmatch:     true,
}

// BinaryBoolOp is `Left <Op> Right`, e.g. `a and b`.
type BinaryBoolOp struct {
	Op    BoolOp
	Left  Node
	Right Node
}

func (*BinaryBoolOp) isNode() {}

// UnaryBoolOp is `<Op> Arg`, e.g. `not a`.
type UnaryBoolOp struct {
	Op  BoolOp
	Arg Node
}

func (*UnaryBoolOp) isNode() {}

// BinaryRelOp is `Left <Op> Right`, e.g. `evt.type = open`. Index is set by
// StampRelationalNodes.
type BinaryRelOp struct {
	Left  *Value
	Op    RelOp
	Right Node // *Value or *List
	Index int
}

func (*BinaryRelOp) isNode() {}

// UnaryRelOp is a single-operand relational test, e.g. `fd.num exists`.
// Index is set by StampRelationalNodes.
type UnaryRelOp struct {
	Arg   *Value
	Op    RelOp
	Index int
}

func (*UnaryRelOp) isNode() {}

// Value is a leaf field/literal reference.
type Value struct {
	Value string
}

func (*Value) isNode() {}

// List is a sequence of Value elements, the right-hand side of a list
// operator (in/intersects/pmatch).
type List struct {
	Elements []*Value
}

func (*List) isNode() {}

// StampRelationalNodes recursively walks root and sets Index on every
// relational node (BinaryRelOp/UnaryRelOp) it contains. Bool-op nodes are
// recursed into; any other node type is an invariant violation.
func StampRelationalNodes(root Node, index int) {
	switch n := root.(type) {
	case *BinaryBoolOp:
		StampRelationalNodes(n.Left, index)
		StampRelationalNodes(n.Right, index)
	case *UnaryBoolOp:
		StampRelationalNodes(n.Arg, index)
	case *BinaryRelOp:
		n.Index = index
	case *UnaryRelOp:
		n.Index = index
	default:
		panic("filterast: unexpected node type in StampRelationalNodes")
	}
}
