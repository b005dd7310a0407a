// Package exceptions lowers a rule's declarative exceptions into the
// derived boolean condition fragment conjoined onto the rule's base
// condition (spec.md §4.3).
package exceptions

import (
	"fmt"
	"strings"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/rulesengine"
	"github.com/rulecore/compiler/pkg/textfmt"
)

// Lower builds compile_condition and exception_fields for a rule given its
// base condition and exceptions, per spec.md §4.3:
//
//	compile_condition = "(C) econd"   when econd is non-empty
//	                   = C            otherwise
func Lower(baseCondition string, items []catalog.ExceptionItem) (compileCondition string, fields map[string]struct{}, err error) {
	fields = map[string]struct{}{}
	var econd strings.Builder
	for _, item := range items {
		frag, itemFields, ferr := lowerOne(item)
		if ferr != nil {
			return "", nil, fmt.Errorf("exception %q: %w", item.Name, ferr)
		}
		for f := range itemFields {
			fields[f] = struct{}{}
		}
		if frag == "" {
			continue
		}
		econd.WriteString(" and not ")
		econd.WriteString(frag)
	}
	if econd.Len() == 0 {
		return baseCondition, fields, nil
	}
	return "(" + baseCondition + ")" + econd.String(), fields, nil
}

func lowerOne(item catalog.ExceptionItem) (string, map[string]struct{}, error) {
	fields := map[string]struct{}{}
	for _, f := range item.Fields {
		fields[f] = struct{}{}
	}

	if len(item.Fields) <= 1 {
		frag, err := lowerSingleField(item)
		return frag, fields, err
	}
	frag, err := lowerMultiField(item)
	return frag, fields, err
}

// lowerSingleField renders "(F C (q(v1), q(v2), ...))"; an empty values list
// yields the empty string.
func lowerSingleField(item catalog.ExceptionItem) (string, error) {
	if len(item.Values) == 0 {
		return "", nil
	}
	field := item.Fields[0]
	comp := "in"
	if len(item.Comps) == 1 {
		comp = item.Comps[0]
	}
	quoted := make([]string, 0, len(item.Values))
	for _, v := range item.Values {
		if v.Tuple != nil {
			return "", fmt.Errorf("single-field exception values must be strings")
		}
		quoted = append(quoted, textfmt.Quote(v.Scalar))
	}
	return fmt.Sprintf("(%s %s (%s))", field, comp, strings.Join(quoted, ", ")), nil
}

// lowerMultiField renders "( (F1 C1 V1' and F2 C2 V2' and ...) or (...) ... )";
// an outer that would reduce to "()" yields the empty string.
func lowerMultiField(item catalog.ExceptionItem) (string, error) {
	n := len(item.Fields)
	comps := item.Comps
	if len(comps) == 0 {
		comps = make([]string, n)
		for i := range comps {
			comps[i] = "="
		}
	}
	if len(comps) != n {
		return "", fmt.Errorf("comps length %d != fields length %d", len(comps), n)
	}

	var rows []string
	for _, row := range item.Values {
		if len(row.Tuple) != n {
			return "", fmt.Errorf("values tuple length %d != fields length %d", len(row.Tuple), n)
		}
		var parts []string
		for i := 0; i < n; i++ {
			rendered, err := renderMultiFieldValue(row.Tuple[i], comps[i])
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", item.Fields[i], comps[i], rendered))
		}
		rows = append(rows, "("+strings.Join(parts, " and ")+")")
	}
	if len(rows) == 0 {
		return "", nil
	}
	return "(" + strings.Join(rows, " or ") + ")", nil
}

func renderMultiFieldValue(v any, comp string) (string, error) {
	switch vv := v.(type) {
	case []string:
		quoted := make([]string, 0, len(vv))
		for _, e := range vv {
			quoted = append(quoted, textfmt.Quote(e))
		}
		return "(" + strings.Join(quoted, ", ") + ")", nil
	case string:
		if rulesengine.IsListOperator(comp) {
			return textfmt.Parenthesize(vv), nil
		}
		return textfmt.Quote(vv), nil
	default:
		return "", fmt.Errorf("unsupported exception value type %T", v)
	}
}
