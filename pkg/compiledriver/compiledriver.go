// Package compiledriver implements Pass 2b, the macro/rule compiler driver:
// it resets the host runtime, expands lists, compiles macros and rules in
// declaration order against the external FilterCompiler, lowers exceptions,
// stamps relational nodes with a dense rule index, walks each AST against
// the host's filter-builder API, and applies the container-info output
// rewrite (spec.md §4.5).
package compiledriver

import (
	"fmt"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/exceptions"
	"github.com/rulecore/compiler/pkg/expand"
	"github.com/rulecore/compiler/pkg/filterast"
	"github.com/rulecore/compiler/pkg/rulesengine"
)

// Options carries the load-call parameters that only the driver needs
// (spec.md §6 load_rules signature).
//
// AllEvents and Verbose are threaded through from load_rules but spec.md
// does not spell out their effect beyond the signature; this driver treats
// AllEvents as relaxing source validation (every source is accepted, not
// just the host's known set) and Verbose as gating the two optional,
// non-structural warnings (too-broad-event-type match, skip-if-unknown-
// filter applied) — both documented in DESIGN.md's Open Question
// decisions.
type Options struct {
	Verbose              bool
	AllEvents            bool
	Extra                string
	ReplaceContainerInfo bool
}

// Result is what Compile hands back for the caller to fold into a broader
// load result.
type Result struct {
	Warnings []string
}

// Compile runs Pass 2b against cat, which must already hold Pass 1 state.
func Compile(cat *catalog.Catalog, fc rulesengine.FilterCompiler, host rulesengine.RulesEngineHost, opts Options) (*Result, error) {
	host.ClearFilters()
	cat.ResetForCompile()

	expanded := expand.ToStringMap(expand.Lists(cat))

	res := &Result{}
	compiledMacros := map[string]filterast.Node{}

	for _, name := range cat.OrderedMacroNames {
		m := cat.MacrosByName[name]
		out, err := fc.CompileMacro(m.Condition, compiledMacros, expanded)
		if err != nil {
			return nil, fmt.Errorf("macro %q: %w (%s)", name, err, m.Context)
		}
		m.AST = out.AST
		m.Used = false
		compiledMacros[name] = out.AST
		markUsed(cat, out.UsedMacros, out.UsedLists)
	}

	for _, name := range cat.OrderedRuleNames {
		rec, ok := cat.RulesByName[name]
		if !ok {
			continue // skipped by priority threshold; never reaches Pass 2b
		}

		compileCondition, fields, err := exceptions.Lower(rec.Condition, rec.Exceptions)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w (%s)", name, err, rec.Context)
		}
		rec.CompileCondition = compileCondition
		rec.ExceptionFields = fields

		out, err := fc.CompileFilter(name, compileCondition, compiledMacros, expanded)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w (%s)", name, err, rec.Context)
		}
		if !out.IsRule {
			return nil, fmt.Errorf("rule %q: filter compiler returned a macro-typed AST, not a rule (%s)", name, rec.Context)
		}
		markUsed(cat, out.UsedMacros, out.UsedLists)

		if !opts.AllEvents && !host.IsSourceValid(rec.Source) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rule %q: unknown source %q", name, rec.Source))
			continue
		}

		idx := cat.AddCompiledRule(rec)
		filterast.StampRelationalNodes(out.AST, idx)

		parser, err := host.CreateParser(rec.Source)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		if walkErr := walk(parser, out.AST, "", false); walkErr != nil {
			if rec.SkipIfUnknownFilter && isUnknownFieldError(walkErr) {
				if opts.Verbose {
					res.Warnings = append(res.Warnings, fmt.Sprintf("rule %q: %v", name, walkErr))
				}
				continue
			}
			return nil, fmt.Errorf("rule %q: %w (%s)", name, walkErr, rec.Context)
		}

		numEvt, err := host.AddFilter(parser, name, rec.Source, tagSlice(rec.Tags))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		if opts.Verbose && rec.Source == "syscall" && (numEvt == 0 || numEvt > 100) && rec.WarnEvttypes {
			res.Warnings = append(res.Warnings, fmt.Sprintf("rule %q matches a broad set of event types (%d)", name, numEvt))
		}

		host.EnableRule(name, rec.Enabled)

		rec.Output = rewriteContainerInfo(rec.Output, rec.Source, opts.Extra, opts.ReplaceContainerInfo)
		if err := host.IsFormatValid(rec.Source, rec.Output); err != nil {
			return nil, fmt.Errorf("rule %q: invalid output template: %w (%s)", name, err, rec.Context)
		}
	}

	for _, name := range cat.OrderedMacroNames {
		if !cat.MacrosByName[name].Used {
			res.Warnings = append(res.Warnings, fmt.Sprintf("macro %q not referred to by any rule/macro", name))
		}
	}
	for _, name := range cat.OrderedListNames {
		if !cat.ListsByName[name].Used {
			res.Warnings = append(res.Warnings, fmt.Sprintf("list %q not referred to by any rule/macro/list", name))
		}
	}

	return res, nil
}

func markUsed(cat *catalog.Catalog, macros, lists []string) {
	for _, m := range macros {
		if rec, ok := cat.MacrosByName[m]; ok {
			rec.Used = true
		}
	}
	for _, l := range lists {
		if rec, ok := cat.ListsByName[l]; ok {
			rec.Used = true
		}
	}
}

func tagSlice(tags map[string]struct{}) []string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	return out
}

// unknownFieldError is the error a FilterCompiler/host is expected to
// return when an AST references an undefined field name; skip-if-unknown-
// filter rules tolerate exactly this failure mode (spec.md §4.5 step 6).
type unknownFieldError struct {
	field string
}

func (e *unknownFieldError) Error() string {
	return fmt.Sprintf("nonexistent field %q", e.field)
}

// NewUnknownFieldError lets a RulesEngineHost/ParserBuilder implementation
// report the recoverable error case spec.md §4.5 step 6 names.
func NewUnknownFieldError(field string) error {
	return &unknownFieldError{field: field}
}

func isUnknownFieldError(err error) bool {
	_, ok := err.(*unknownFieldError)
	return ok
}

// walk performs the Filter Builder Walk (spec.md §4.5): it emits nest/
// unnest/bool_op/rel_expr calls against p for node, tracking the immediate
// bool-op parent to apply the same-operator elision optimization.
func walk(p rulesengine.ParserBuilder, node filterast.Node, parent filterast.BoolOp, hasParent bool) error {
	switch n := node.(type) {
	case *filterast.BinaryBoolOp:
		sameParent := hasParent && parent == n.Op
		if !sameParent {
			if err := p.Nest(); err != nil {
				return err
			}
		}
		if err := walk(p, n.Left, n.Op, true); err != nil {
			return err
		}
		if err := p.BoolOp(n.Op); err != nil {
			return err
		}
		if err := walk(p, n.Right, n.Op, true); err != nil {
			return err
		}
		if !sameParent {
			if err := p.Unnest(); err != nil {
				return err
			}
		}
		return nil

	case *filterast.UnaryBoolOp:
		if err := p.Nest(); err != nil {
			return err
		}
		if err := p.BoolOp(n.Op); err != nil {
			return err
		}
		if err := walk(p, n.Arg, "", false); err != nil {
			return err
		}
		return p.Unnest()

	case *filterast.BinaryRelOp:
		if filterast.ListOperators[n.Op] {
			list, ok := n.Right.(*filterast.List)
			if !ok {
				return fmt.Errorf("compiledriver: list operator %q without a *filterast.List right-hand side", n.Op)
			}
			values := make([]string, 0, len(list.Elements))
			for _, v := range list.Elements {
				values = append(values, v.Value)
			}
			return p.RelExpr(n.Left.Value, n.Op, values, n.Index)
		}
		rv, ok := n.Right.(*filterast.Value)
		if !ok {
			return fmt.Errorf("compiledriver: scalar operator %q without a *filterast.Value right-hand side", n.Op)
		}
		return p.RelExpr(n.Left.Value, n.Op, rv.Value, n.Index)

	case *filterast.UnaryRelOp:
		return p.RelExpr(n.Arg.Value, n.Op, nil, n.Index)

	default:
		return fmt.Errorf("compiledriver: unexpected AST node type %T in Filter Builder Walk", node)
	}
}

const containerInfoToken = "%container.info"
const containerInfoDefault = "%container.name (id=%container.id)"

// rewriteContainerInfo applies spec.md §4.5 step 9.
func rewriteContainerInfo(output, source, extra string, replace bool) string {
	if source != "syscall" {
		if extra != "" {
			return output + " " + extra
		}
		return output
	}

	idx := indexOf(output, containerInfoToken)
	if idx < 0 {
		if extra != "" {
			return output + " " + extra
		}
		return output
	}

	if extra != "" && replace {
		return output[:idx] + extra + output[idx+len(containerInfoToken):]
	}
	rewritten := output[:idx] + containerInfoDefault + output[idx+len(containerInfoToken):]
	if extra != "" {
		rewritten += " " + extra
	}
	return rewritten
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
