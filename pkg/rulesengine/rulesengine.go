// Package rulesengine declares the two external collaborators the core
// depends on but never implements itself: the filter-expression compiler
// and the host runtime that owns filter storage, field validity, and event
// dispatch (spec.md §6). Production code supplies real implementations;
// internal/refhost supplies a reference implementation for this module's
// own tests.
package rulesengine

import "github.com/rulecore/compiler/pkg/filterast"

// FilterCompiler turns filter-language text into an AST. It is the
// out-of-scope "lexer/parser for the filter-expression sub-language".
type FilterCompiler interface {
	// CompileMacro compiles a macro body. The returned Output's AST must
	// never be type-asserted as rule-shaped by callers; macros may only
	// ever be used as named sub-expressions that other compiles splice in
	// by name.
	CompileMacro(condition string, macros map[string]filterast.Node, lists map[string][]string) (*CompileOutput, error)

	// CompileFilter compiles a named rule condition. The returned Output
	// carries the IsRule marker (spec.md §4.5 step 3: "the result must be a
	// rule-typed AST (not a macro)").
	CompileFilter(name, condition string, macros map[string]filterast.Node, lists map[string][]string) (*CompileOutput, error)

	// Trim strips trailing newlines, mirroring the host's `trim` operation.
	Trim(text string) string
}

// CompileOutput is what a FilterCompiler call returns: the AST plus which
// macro/list names it resolved along the way, so the driver can mark them
// used (spec.md §3 "used flags", §4.5).
type CompileOutput struct {
	AST        filterast.Node
	IsRule     bool
	UsedMacros []string
	UsedLists  []string
}

// ParserBuilder is the per-source filter-builder handle a RulesEngineHost
// hands out; the compile driver walks a rule's AST and emits calls against
// it (spec.md §4.5 "Filter Builder Walk").
type ParserBuilder interface {
	Nest() error
	Unnest() error
	BoolOp(op filterast.BoolOp) error
	RelExpr(field string, op filterast.RelOp, value any, index int) error
}

// RulesEngineHost is the native engine that owns parsers, filter storage,
// and event delivery (spec.md §6).
type RulesEngineHost interface {
	EngineVersion() float64
	IsDefinedField(source, name string) bool
	IsSourceValid(source string) bool
	// IsFormatValid returns a non-nil error if template is invalid for source.
	IsFormatValid(source, template string) error
	ClearFilters()
	CreateParser(source string) (ParserBuilder, error)
	// AddFilter registers the filter built via the parser and returns the
	// number of event types it covers.
	AddFilter(p ParserBuilder, ruleName, source string, tags []string) (numEvtTypes int, err error)
	EnableRule(ruleName string, enabled bool)
}

// DefinedComparisonOps is the full operator set spec.md §4.2 defines.
var DefinedComparisonOps = map[string]filterast.RelOp{
	"=":          filterast.OpEq,
	"==":         filterast.OpEqEq,
	"!=":         filterast.OpNeq,
	"<=":         filterast.OpLe,
	">=":         filterast.OpGe,
	"<":          filterast.OpLt,
	">":          filterast.OpGt,
	"contains":   filterast.OpContains,
	"icontains":  filterast.OpIContains,
	"glob":       filterast.OpGlob,
	"startswith": filterast.OpStartsWith,
	"endswith":   filterast.OpEndsWith,
	"in":         filterast.OpIn,
	"intersects": filterast.OpIntersects,
	"pmatch":     filterast.OpPmatch,
}

// IsListOperator reports whether op's right-hand side is a list.
func IsListOperator(op string) bool {
	return op == "in" || op == "intersects" || op == "pmatch"
}
