package rulecore

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rulecore/compiler/pkg/filterast"
	"github.com/rulecore/compiler/pkg/priority"
	"github.com/rulecore/compiler/pkg/rulesengine"
)

type fakeParser struct{}

func (fakeParser) Nest() error                                                      { return nil }
func (fakeParser) Unnest() error                                                    { return nil }
func (fakeParser) BoolOp(op filterast.BoolOp) error                                 { return nil }
func (fakeParser) RelExpr(field string, op filterast.RelOp, value any, index int) error { return nil }

type fakeHost struct {
	sourceValid bool
}

func (h fakeHost) EngineVersion() float64                      { return 100 }
func (h fakeHost) IsDefinedField(source, name string) bool     { return true }
func (h fakeHost) IsSourceValid(source string) bool             { return h.sourceValid }
func (h fakeHost) IsFormatValid(source, template string) error { return nil }
func (h fakeHost) ClearFilters()                                {}
func (h fakeHost) CreateParser(source string) (rulesengine.ParserBuilder, error) {
	return fakeParser{}, nil
}
func (h fakeHost) AddFilter(p rulesengine.ParserBuilder, ruleName, source string, tags []string) (int, error) {
	return 1, nil
}
func (h fakeHost) EnableRule(ruleName string, enabled bool) {}

var _ rulesengine.RulesEngineHost = fakeHost{}

type fakeCompiler struct {
	failMacro  bool
	failFilter bool
}

func (c fakeCompiler) CompileMacro(condition string, macros map[string]filterast.Node, lists map[string][]string) (*rulesengine.CompileOutput, error) {
	if c.failMacro {
		return nil, errors.New("boom")
	}
	return &rulesengine.CompileOutput{AST: &filterast.Value{Value: condition}}, nil
}

func (c fakeCompiler) CompileFilter(name, condition string, macros map[string]filterast.Node, lists map[string][]string) (*rulesengine.CompileOutput, error) {
	if c.failFilter {
		return nil, errors.New("boom")
	}
	return &rulesengine.CompileOutput{
		AST:    &filterast.BinaryRelOp{Left: &filterast.Value{Value: "evt.type"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "open"}},
		IsRule: true,
	}, nil
}

func (c fakeCompiler) Trim(text string) string { return text }

var _ rulesengine.FilterCompiler = fakeCompiler{}

const minimalDoc = `
- rule: R1
  desc: d
  condition: evt.type=open
  output: "x"
  priority: INFO
`

func TestLoadEndToEnd(t *testing.T) {
	res, err := Load(minimalDoc, fakeHost{sourceValid: true}, fakeCompiler{}, Options{MinPriority: priority.Debug})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Catalog.RulesByName) != 1 {
		t.Fatalf("want 1 rule, got %d", len(res.Catalog.RulesByName))
	}
	if res.Catalog.NRules != 1 {
		t.Fatalf("n_rules = %d, want 1", res.Catalog.NRules)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestLoadPropagatesPass1Error(t *testing.T) {
	const bad = `
- rule: R1
  desc: d
  condition: evt.type=open
  output: "x"
  priority: NOT_A_PRIORITY
`
	if _, err := Load(bad, fakeHost{sourceValid: true}, fakeCompiler{}, Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadPropagatesPass2Error(t *testing.T) {
	if _, err := Load(minimalDoc, fakeHost{sourceValid: true}, fakeCompiler{failFilter: true}, Options{MinPriority: priority.Debug}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadEmptyInputBoundary(t *testing.T) {
	res, err := Load("", fakeHost{sourceValid: true}, fakeCompiler{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Catalog.RulesByName) != 0 || res.RequiredEngineVersion != 0 || len(res.Warnings) != 0 {
		t.Fatalf("expected empty boundary result, got %+v", res)
	}
}

func TestLoadIsIdempotentAcrossCalls(t *testing.T) {
	res1, err := Load(minimalDoc, fakeHost{sourceValid: true}, fakeCompiler{}, Options{MinPriority: priority.Debug})
	if err != nil {
		t.Fatal(err)
	}
	res2, err := Load(minimalDoc, fakeHost{sourceValid: true}, fakeCompiler{}, Options{MinPriority: priority.Debug})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res1.Warnings, res2.Warnings) {
		t.Fatalf("warnings differ: %v vs %v", res1.Warnings, res2.Warnings)
	}
	if !reflect.DeepEqual(res1.Catalog.OrderedRuleNames, res2.Catalog.OrderedRuleNames) {
		t.Fatalf("ordered rule names differ: %v vs %v", res1.Catalog.OrderedRuleNames, res2.Catalog.OrderedRuleNames)
	}
	r1 := res1.Catalog.RulesByName["R1"]
	r2 := res2.Catalog.RulesByName["R1"]
	if !reflect.DeepEqual(r1.ExceptionFields, r2.ExceptionFields) {
		t.Fatalf("exception fields differ: %v vs %v", r1.ExceptionFields, r2.ExceptionFields)
	}
	if res1.Catalog == res2.Catalog {
		t.Fatal("expected two independent Catalog instances")
	}
}
