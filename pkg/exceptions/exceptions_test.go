package exceptions

import (
	"reflect"
	"testing"

	"github.com/rulecore/compiler/pkg/catalog"
)

func TestLowerSingleField(t *testing.T) {
	item := catalog.ExceptionItem{
		Name:   "e",
		Fields: []string{"proc.name"},
		Values: []catalog.ExceptionValue{{Scalar: "apk"}, {Scalar: "my proc"}},
	}
	cond, fields, err := Lower("evt.type=open", []catalog.ExceptionItem{item})
	if err != nil {
		t.Fatal(err)
	}
	want := `(evt.type=open) and not (proc.name in (apk, "my proc"))`
	if cond != want {
		t.Fatalf("cond = %q, want %q", cond, want)
	}
	if !reflect.DeepEqual(fields, map[string]struct{}{"proc.name": {}}) {
		t.Fatalf("fields = %v", fields)
	}
}

func TestLowerMultiFieldWithListOp(t *testing.T) {
	item := catalog.ExceptionItem{
		Name:   "e",
		Fields: []string{"proc.name", "fd.directory"},
		Comps:  []string{"in", "="},
		Values: []catalog.ExceptionValue{
			{Tuple: []any{[]string{"apk", "npm"}, "/usr/lib/alpine"}},
		},
	}
	cond, _, err := Lower("c", []catalog.ExceptionItem{item})
	if err != nil {
		t.Fatal(err)
	}
	want := `(c) and not ((proc.name in (apk, npm) and fd.directory = /usr/lib/alpine))`
	if cond != want {
		t.Fatalf("cond = %q, want %q", cond, want)
	}
}

func TestLowerEmptyValuesContributesNothing(t *testing.T) {
	item := catalog.ExceptionItem{Name: "e", Fields: []string{"proc.name"}}
	cond, fields, err := Lower("c", []catalog.ExceptionItem{item})
	if err != nil {
		t.Fatal(err)
	}
	if cond != "c" {
		t.Fatalf("cond = %q, want unchanged base condition", cond)
	}
	if len(fields) != 1 {
		t.Fatalf("fields should still record the referenced field: %v", fields)
	}
}

func TestLowerNoExceptionsIsNoOp(t *testing.T) {
	cond, fields, err := Lower("c", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cond != "c" {
		t.Fatalf("cond = %q, want %q", cond, "c")
	}
	if len(fields) != 0 {
		t.Fatalf("fields = %v, want empty", fields)
	}
}

func TestLowerMultiFieldTupleLengthMismatch(t *testing.T) {
	item := catalog.ExceptionItem{
		Name:   "e",
		Fields: []string{"a", "b"},
		Comps:  []string{"=", "="},
		Values: []catalog.ExceptionValue{{Tuple: []any{"only-one"}}},
	}
	if _, _, err := Lower("c", []catalog.ExceptionItem{item}); err == nil {
		t.Fatal("expected error on tuple length mismatch")
	}
}
