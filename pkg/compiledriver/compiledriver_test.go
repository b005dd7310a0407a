package compiledriver

import (
	"strings"
	"testing"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/filterast"
	"github.com/rulecore/compiler/pkg/priority"
	"github.com/rulecore/compiler/pkg/rulesengine"
)

type fakeCompiler struct {
	compileFilter func(name, condition string) (*rulesengine.CompileOutput, error)
}

func (f *fakeCompiler) CompileMacro(condition string, macros map[string]filterast.Node, lists map[string][]string) (*rulesengine.CompileOutput, error) {
	return &rulesengine.CompileOutput{AST: &filterast.Value{Value: condition}}, nil
}

func (f *fakeCompiler) CompileFilter(name, condition string, macros map[string]filterast.Node, lists map[string][]string) (*rulesengine.CompileOutput, error) {
	return f.compileFilter(name, condition)
}

func (f *fakeCompiler) Trim(text string) string { return strings.TrimRight(text, "\n") }

type fakeParser struct {
	calls      []string
	failOnField string
}

func (p *fakeParser) Nest() error   { p.calls = append(p.calls, "nest"); return nil }
func (p *fakeParser) Unnest() error { p.calls = append(p.calls, "unnest"); return nil }
func (p *fakeParser) BoolOp(op filterast.BoolOp) error {
	p.calls = append(p.calls, "bool_op:"+string(op))
	return nil
}
func (p *fakeParser) RelExpr(field string, op filterast.RelOp, value any, index int) error {
	if p.failOnField != "" && field == p.failOnField {
		return NewUnknownFieldError(field)
	}
	p.calls = append(p.calls, "rel_expr:"+field)
	return nil
}

type fakeHost struct {
	sourceValid  bool
	numEvt       int
	addFilterErr error
	enabled      map[string]bool
	parser       *fakeParser
}

func (h *fakeHost) EngineVersion() float64                      { return 100 }
func (h *fakeHost) IsDefinedField(source, name string) bool     { return true }
func (h *fakeHost) IsSourceValid(source string) bool             { return h.sourceValid }
func (h *fakeHost) IsFormatValid(source, template string) error { return nil }
func (h *fakeHost) ClearFilters()                                {}
func (h *fakeHost) CreateParser(source string) (rulesengine.ParserBuilder, error) {
	return h.parser, nil
}
func (h *fakeHost) AddFilter(p rulesengine.ParserBuilder, ruleName, source string, tags []string) (int, error) {
	return h.numEvt, h.addFilterErr
}
func (h *fakeHost) EnableRule(ruleName string, enabled bool) {
	if h.enabled == nil {
		h.enabled = map[string]bool{}
	}
	h.enabled[ruleName] = enabled
}

func ruleCatalog(rec *catalog.RuleRecord) *catalog.Catalog {
	cat := catalog.New()
	cat.RulesByName[rec.Name] = rec
	cat.OrderedRuleNames = append(cat.OrderedRuleNames, rec.Name)
	return cat
}

func TestWalkElidesSameOperatorNesting(t *testing.T) {
	// (a and b) and c -- all "and", so only the outermost nest/unnest fires.
	ast := &filterast.BinaryRelOp{} // placeholder, replaced below
	_ = ast
	inner := &filterast.BinaryRelOp{Left: &filterast.Value{Value: "a"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "1"}}
	leaf := &filterast.BinaryRelOp{Left: &filterast.Value{Value: "b"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "2"}}
	third := &filterast.BinaryRelOp{Left: &filterast.Value{Value: "c"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "3"}}
	tree := &filterast.BinaryBoolOp{
		Op:   filterast.And,
		Left: &filterast.BinaryBoolOp{Op: filterast.And, Left: inner, Right: leaf},
		Right: third,
	}

	cat := ruleCatalog(&catalog.RuleRecord{
		Name: "R1", Condition: "a=1 and b=2 and c=3", Source: "syscall", Output: "o",
		Enabled: true, PriorityN: priority.Notice,
	})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: tree, IsRule: true}, nil
	}}
	parser := &fakeParser{}
	host := &fakeHost{sourceValid: true, parser: parser}

	res, err := Compile(cat, fc, host, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}

	nestCount := 0
	for _, c := range parser.calls {
		if c == "nest" {
			nestCount++
		}
	}
	if nestCount != 1 {
		t.Fatalf("expected exactly one nest() due to same-operator elision, got %d calls: %v", nestCount, parser.calls)
	}
	if cat.NRules != 1 {
		t.Fatalf("n_rules = %d, want 1", cat.NRules)
	}
	if inner.Index != 1 || leaf.Index != 1 || third.Index != 1 {
		t.Fatalf("relational nodes not stamped: %+v %+v %+v", inner, leaf, third)
	}
}

func TestWalkListOperator(t *testing.T) {
	tree := &filterast.BinaryRelOp{
		Left: &filterast.Value{Value: "proc.name"},
		Op:   filterast.OpIn,
		Right: &filterast.List{Elements: []*filterast.Value{
			{Value: "apk"}, {Value: "npm"},
		}},
	}
	cat := ruleCatalog(&catalog.RuleRecord{Name: "R1", Condition: "c", Source: "syscall", Output: "o", Enabled: true})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: tree, IsRule: true}, nil
	}}
	parser := &fakeParser{}
	host := &fakeHost{sourceValid: true, parser: parser}

	if _, err := Compile(cat, fc, host, Options{}); err != nil {
		t.Fatal(err)
	}
	if len(parser.calls) != 1 || parser.calls[0] != "rel_expr:proc.name" {
		t.Fatalf("calls = %v", parser.calls)
	}
}

func TestCompileSkipsInvalidSource(t *testing.T) {
	cat := ruleCatalog(&catalog.RuleRecord{Name: "R1", Condition: "c", Source: "bogus", Output: "o"})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.Value{Value: "x"}, IsRule: true}, nil
	}}
	host := &fakeHost{sourceValid: false}

	res, err := Compile(cat, fc, host, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
	if cat.NRules != 0 {
		t.Fatalf("n_rules = %d, want 0", cat.NRules)
	}
}

func TestCompileAllEventsBypassesSourceValidation(t *testing.T) {
	cat := ruleCatalog(&catalog.RuleRecord{Name: "R1", Condition: "c", Source: "bogus", Output: "o"})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.UnaryRelOp{Arg: &filterast.Value{Value: "x"}, Op: filterast.OpExists}, IsRule: true}, nil
	}}
	host := &fakeHost{sourceValid: false, parser: &fakeParser{}}

	res, err := Compile(cat, fc, host, Options{AllEvents: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}
	if cat.NRules != 1 {
		t.Fatalf("n_rules = %d, want 1", cat.NRules)
	}
}

func TestCompileSkipIfUnknownFilterRecordsWarning(t *testing.T) {
	tree := &filterast.BinaryRelOp{Left: &filterast.Value{Value: "nope.field"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "1"}}
	cat := ruleCatalog(&catalog.RuleRecord{
		Name: "R1", Condition: "c", Source: "syscall", Output: "o",
		SkipIfUnknownFilter: true,
	})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: tree, IsRule: true}, nil
	}}
	parser := &fakeParser{failOnField: "nope.field"}
	host := &fakeHost{sourceValid: true, parser: parser}

	res, err := Compile(cat, fc, host, Options{Verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "nope.field") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestCompileUnknownFilterWithoutSkipFlagIsFatal(t *testing.T) {
	tree := &filterast.BinaryRelOp{Left: &filterast.Value{Value: "nope.field"}, Op: filterast.OpEq, Right: &filterast.Value{Value: "1"}}
	cat := ruleCatalog(&catalog.RuleRecord{Name: "R1", Condition: "c", Source: "syscall", Output: "o"})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: tree, IsRule: true}, nil
	}}
	parser := &fakeParser{failOnField: "nope.field"}
	host := &fakeHost{sourceValid: true, parser: parser}

	if _, err := Compile(cat, fc, host, Options{}); err == nil {
		t.Fatal("expected fatal error")
	}
}

func TestCompileRejectsMacroTypedResult(t *testing.T) {
	cat := ruleCatalog(&catalog.RuleRecord{Name: "R1", Condition: "c", Source: "syscall", Output: "o"})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.Value{Value: "x"}, IsRule: false}, nil
	}}
	host := &fakeHost{sourceValid: true, parser: &fakeParser{}}

	if _, err := Compile(cat, fc, host, Options{}); err == nil {
		t.Fatal("expected error for macro-typed result")
	}
}

func TestCompileUnusedMacroAndListWarnings(t *testing.T) {
	cat := catalog.New()
	cat.MacrosByName["m"] = &catalog.MacroRecord{Name: "m", Condition: "a=1"}
	cat.OrderedMacroNames = append(cat.OrderedMacroNames, "m")
	cat.ListsByName["l"] = &catalog.ListRecord{Name: "l", Items: []string{"x"}}
	cat.OrderedListNames = append(cat.OrderedListNames, "l")

	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.Value{Value: "x"}, IsRule: true}, nil
	}}
	host := &fakeHost{sourceValid: true, parser: &fakeParser{}}

	res, err := Compile(cat, fc, host, Options{})
	if err != nil {
		t.Fatal(err)
	}
	foundMacro, foundList := false, false
	for _, w := range res.Warnings {
		if strings.Contains(w, `macro "m"`) {
			foundMacro = true
		}
		if strings.Contains(w, `list "l"`) {
			foundList = true
		}
	}
	if !foundMacro || !foundList {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestCompileMarksMacroAndListUsed(t *testing.T) {
	cat := catalog.New()
	cat.MacrosByName["m"] = &catalog.MacroRecord{Name: "m", Condition: "a=1"}
	cat.OrderedMacroNames = append(cat.OrderedMacroNames, "m")
	cat.ListsByName["l"] = &catalog.ListRecord{Name: "l", Items: []string{"x"}}
	cat.OrderedListNames = append(cat.OrderedListNames, "l")
	cat.RulesByName["R1"] = &catalog.RuleRecord{Name: "R1", Condition: "c", Source: "syscall", Output: "o"}
	cat.OrderedRuleNames = append(cat.OrderedRuleNames, "R1")

	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{
			AST: &filterast.UnaryRelOp{Arg: &filterast.Value{Value: "x"}, Op: filterast.OpExists}, IsRule: true,
			UsedMacros: []string{"m"}, UsedLists: []string{"l"},
		}, nil
	}}
	host := &fakeHost{sourceValid: true, parser: &fakeParser{}}

	res, err := Compile(cat, fc, host, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if !cat.MacrosByName["m"].Used || !cat.ListsByName["l"].Used {
		t.Fatal("expected macro and list to be marked used")
	}
}

func TestRewriteContainerInfo(t *testing.T) {
	cases := []struct {
		name    string
		output  string
		source  string
		extra   string
		replace bool
		want    string
	}{
		{"non-syscall untouched", "out %container.info", "k8s_audit", "", false, "out %container.info"},
		{"non-syscall with extra appended", "out", "k8s_audit", "e", false, "out e"},
		{"syscall default substitution", "out %container.info", "syscall", "", false, "out %container.name (id=%container.id)"},
		{"syscall default substitution with extra appended", "out %container.info", "syscall", "e", false, "out %container.name (id=%container.id) e"},
		{"syscall replace with extra", "out %container.info", "syscall", "e", true, "out e"},
		{"syscall no token, extra appended", "out", "syscall", "e", false, "out e"},
		{"syscall no token, no extra", "out", "syscall", "", false, "out"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := rewriteContainerInfo(c.output, c.source, c.extra, c.replace)
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestCompileAppliesContainerInfoRewriteToRuleOutput(t *testing.T) {
	cat := ruleCatalog(&catalog.RuleRecord{
		Name: "R1", Condition: "c", Source: "syscall", Output: "msg %container.info",
	})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.UnaryRelOp{Arg: &filterast.Value{Value: "x"}, Op: filterast.OpExists}, IsRule: true}, nil
	}}
	host := &fakeHost{sourceValid: true, parser: &fakeParser{}}

	if _, err := Compile(cat, fc, host, Options{}); err != nil {
		t.Fatal(err)
	}
	want := "msg %container.name (id=%container.id)"
	if cat.RulesByName["R1"].Output != want {
		t.Fatalf("output = %q, want %q", cat.RulesByName["R1"].Output, want)
	}
}

func TestCompileTooBroadEventWarning(t *testing.T) {
	cat := ruleCatalog(&catalog.RuleRecord{
		Name: "R1", Condition: "c", Source: "syscall", Output: "o", WarnEvttypes: true,
	})
	fc := &fakeCompiler{compileFilter: func(name, condition string) (*rulesengine.CompileOutput, error) {
		return &rulesengine.CompileOutput{AST: &filterast.UnaryRelOp{Arg: &filterast.Value{Value: "x"}, Op: filterast.OpExists}, IsRule: true}, nil
	}}
	host := &fakeHost{sourceValid: true, parser: &fakeParser{}, numEvt: 0}

	res, err := Compile(cat, fc, host, Options{Verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "broad") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected too-broad-event warning, got %v", res.Warnings)
	}
}
