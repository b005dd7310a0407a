// Package ruleload implements Pass 1 of the loader: walking parsed YAML
// documents, classifying each top-level item, validating it structurally,
// and applying append semantics into a catalog.Catalog (spec.md §4.2).
package ruleload

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/priority"
	"github.com/rulecore/compiler/pkg/rulesengine"
	"github.com/rulecore/compiler/pkg/sourcemap"
)

// Result is the outcome of a Pass 1 load.
type Result struct {
	Catalog               *catalog.Catalog
	RequiredEngineVersion float64
	Warnings              []string
}

// Load parses raw as a sequence of YAML documents and populates a fresh
// Catalog. min_priority gates which rules land in Catalog.RulesByName versus
// Catalog.SkippedRulesByName (spec.md §4.2 "Priority gating"). host is
// consulted for field validity while validating exceptions and for the
// required_engine_version gate.
//
// An empty input is success with an empty catalog. A document that is not
// an array of mappings is a fatal (Structural) error. Schema/Composition
// errors abort the load and are returned as err; unknown top-level keys and
// other non-fatal conditions accumulate in Result.Warnings.
func Load(raw string, host rulesengine.RulesEngineHost, minPriority priority.Num) (*Result, error) {
	sm := sourcemap.Build(raw)
	cat := catalog.New()
	l := &loader{cat: cat, sm: sm, host: host, minPriority: minPriority}

	dec := yaml.NewDecoder(strings.NewReader(raw))
	for {
		var doc interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("yaml parse error: %w", stripRowCol(err))
		}
		if doc == nil {
			continue
		}
		items, ok := doc.([]interface{})
		if !ok {
			return nil, errors.New(sourcemap.FormatError("top-level document must be an array of mappings", ""))
		}
		for _, raw := range items {
			if err := l.item(raw); err != nil {
				return nil, err
			}
		}
	}

	if host != nil && cat.RequiredEngineVersion > host.EngineVersion() {
		return nil, fmt.Errorf("required_engine_version %v exceeds host engine version %v", cat.RequiredEngineVersion, host.EngineVersion())
	}

	return &Result{Catalog: cat, RequiredEngineVersion: cat.RequiredEngineVersion, Warnings: l.warnings}, nil
}

func stripRowCol(err error) error {
	// YAML parser errors whose payload begins with "<row>:<col>: " are
	// stripped of that prefix, per spec.md §6.
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		prefix := msg[:i]
		parts := strings.SplitN(prefix, ":", 2)
		if len(parts) == 2 && isAllDigits(parts[0]) && isAllDigits(parts[1]) {
			return fmt.Errorf("%s", msg[i+2:])
		}
	}
	return err
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type loader struct {
	cat         *catalog.Catalog
	sm          sourcemap.Map
	host        rulesengine.RulesEngineHost
	minPriority priority.Num
	itemIdx     int
	warnings    []string
}

func (l *loader) warn(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) context() string {
	if l.itemIdx >= len(l.sm.Indices)-1 {
		return "\n"
	}
	r := l.sm.Indices[l.itemIdx]
	return l.sm.Slice(r)
}

func (l *loader) errf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return errors.New(sourcemap.FormatError(msg, l.context()))
}

func (l *loader) item(raw interface{}) error {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return l.errf("top-level item must be a mapping")
	}

	var err error
	switch {
	case has(m, "required_engine_version"):
		err = l.requiredEngineVersion(m)
	case has(m, "required_plugin_versions"):
		err = l.requiredPluginVersions(m)
	case has(m, "macro"):
		err = l.macro(m)
	case has(m, "list"):
		err = l.list(m)
	case has(m, "rule"):
		err = l.rule(m)
	default:
		l.warn("unrecognized top-level item, skipping:\n%s", l.context())
	}
	l.itemIdx++
	return err
}

func has(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}

func (l *loader) requiredEngineVersion(m map[string]interface{}) error {
	v, ok := toFloat(m["required_engine_version"])
	if !ok {
		return l.errf("required_engine_version must be a number")
	}
	if v > l.cat.RequiredEngineVersion {
		l.cat.RequiredEngineVersion = v
	}
	return nil
}

func (l *loader) requiredPluginVersions(m map[string]interface{}) error {
	seq, ok := m["required_plugin_versions"].([]interface{})
	if !ok {
		return l.errf("required_plugin_versions must be a sequence")
	}
	for _, raw := range seq {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return l.errf("required_plugin_versions entry must be a mapping")
		}
		name, nameOK := toString(entry["name"])
		version, verOK := toString(entry["version"])
		if !nameOK || name == "" {
			return l.errf("required_plugin_versions entry missing name")
		}
		if !verOK || version == "" {
			return l.errf("required_plugin_versions entry missing version")
		}
		l.cat.RequiredPluginVersions[name] = append(l.cat.RequiredPluginVersions[name], version)
	}
	return nil
}

func (l *loader) macro(m map[string]interface{}) error {
	name, _ := toString(m["macro"])
	if name == "" {
		return l.errf("macro item missing a name")
	}
	appendFlag, _ := toBool(m["append"])
	ctx := l.context()

	existing, exists := l.cat.MacrosByName[name]
	if appendFlag {
		if !exists {
			return l.errf("macro %q: append with no prior definition", name)
		}
		cond, hasCond := toString(m["condition"])
		if hasCond {
			existing.Condition = existing.Condition + " " + cond
		}
		existing.Context = existing.Context + "\n" + ctx
		return nil
	}

	condition, ok := toString(m["condition"])
	if !ok {
		return l.errf("macro %q missing required field condition", name)
	}
	source, hasSource := toString(m["source"])
	if !hasSource || source == "" {
		source = "syscall"
	}
	l.cat.MacrosByName[name] = &catalog.MacroRecord{
		Name:      name,
		Condition: condition,
		Source:    source,
		Context:   ctx,
	}
	if !exists {
		l.cat.OrderedMacroNames = append(l.cat.OrderedMacroNames, name)
	}
	return nil
}

func (l *loader) list(m map[string]interface{}) error {
	name, _ := toString(m["list"])
	if name == "" {
		return l.errf("list item missing a name")
	}
	appendFlag, _ := toBool(m["append"])
	ctx := l.context()

	existing, exists := l.cat.ListsByName[name]
	items, hasItems := toStringSlice(m["items"])

	if appendFlag {
		if !exists {
			return l.errf("list %q: append with no prior definition", name)
		}
		existing.Items = append(existing.Items, items...)
		existing.Context = existing.Context + "\n" + ctx
		return nil
	}

	if !hasItems {
		return l.errf("list %q missing required field items", name)
	}
	l.cat.ListsByName[name] = &catalog.ListRecord{
		Name:    name,
		Items:   items,
		Context: ctx,
	}
	if !exists {
		l.cat.OrderedListNames = append(l.cat.OrderedListNames, name)
	}
	return nil
}

func (l *loader) rule(m map[string]interface{}) error {
	name, _ := toString(m["rule"])
	if name == "" {
		return l.errf("rule item missing a name")
	}
	appendFlag, _ := toBool(m["append"])
	ctx := l.context()

	if appendFlag {
		return l.ruleAppend(name, m, ctx)
	}

	condition, hasCondition := toString(m["condition"])
	output, hasOutput := toString(m["output"])
	desc, hasDesc := toString(m["desc"])
	priorityStr, hasPriority := toString(m["priority"])

	if !hasCondition || !hasOutput || !hasDesc || !hasPriority {
		// Enabled-only toggle: the only missing fields are the required
		// ones, and the item carries `enabled`.
		if enabled, hasEnabled := toBool(m["enabled"]); hasEnabled {
			target, exists := l.cat.RulesByName[name]
			if !exists {
				if skipped, isSkipped := l.cat.SkippedRulesByName[name]; isSkipped {
					skipped.Enabled = enabled
					return nil
				}
				return l.errf("rule %q: enabled toggle against a rule that does not exist", name)
			}
			target.Enabled = enabled
			return nil
		}
		return l.errf("rule %q missing required fields (condition/output/desc/priority)", name)
	}

	pn, err := priority.Resolve(priorityStr)
	if err != nil {
		return l.errf("rule %q: %v", name, err)
	}

	source, hasSource := toString(m["source"])
	if !hasSource || source == "" {
		source = "syscall"
	}

	exceptions, err := l.parseExceptions(m["exceptions"], source)
	if err != nil {
		return l.errf("rule %q: %v", name, err)
	}

	skipUnknown, _ := toBool(m["skip-if-unknown-filter"])
	warnEvt := true
	if v, ok := toBool(m["warn_evttypes"]); ok {
		warnEvt = v
	}
	tags, _ := toStringSlice(m["tags"])
	tagSet := map[string]struct{}{}
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	enabled := true
	if v, ok := toBool(m["enabled"]); ok {
		enabled = v
	}

	r := &catalog.RuleRecord{
		Name:                name,
		Condition:           condition,
		Output:              strings.TrimRight(output, "\n"),
		Desc:                desc,
		Priority:            priorityStr,
		PriorityN:           pn,
		Source:              source,
		Tags:                tagSet,
		Exceptions:          exceptions,
		Enabled:             enabled,
		SkipIfUnknownFilter: skipUnknown,
		WarnEvttypes:        warnEvt,
		Context:             ctx,
	}

	firstAppearance := true
	if _, exists := l.cat.RulesByName[name]; exists {
		firstAppearance = false
	}
	if _, exists := l.cat.SkippedRulesByName[name]; exists {
		firstAppearance = false
	}

	if pn <= l.minPriority {
		l.cat.RulesByName[name] = r
		delete(l.cat.SkippedRulesByName, name)
	} else {
		l.cat.SkippedRulesByName[name] = r
		delete(l.cat.RulesByName, name)
	}
	if firstAppearance {
		l.cat.OrderedRuleNames = append(l.cat.OrderedRuleNames, name)
	}
	return nil
}

func (l *loader) ruleAppend(name string, m map[string]interface{}, ctx string) error {
	if _, skipped := l.cat.SkippedRulesByName[name]; skipped {
		// Append against a priority-filtered rule is silently dropped
		// (spec.md I5).
		return nil
	}
	target, exists := l.cat.RulesByName[name]
	if !exists {
		return l.errf("rule %q: append with no prior definition", name)
	}

	condition, hasCondition := toString(m["condition"])
	rawExceptions, hasExceptions := m["exceptions"]
	if !hasCondition && !hasExceptions {
		return l.errf("rule %q: append must contribute a condition or exceptions", name)
	}

	if hasExceptions {
		seq, ok := rawExceptions.([]interface{})
		if !ok {
			return l.errf("rule %q: exceptions must be a sequence", name)
		}
		for _, raw := range seq {
			em, ok := raw.(map[string]interface{})
			if !ok {
				return l.errf("rule %q: exception item must be a mapping", name)
			}
			exName, _ := toString(em["name"])
			if exName == "" {
				return l.errf("rule %q: append exception missing a name", name)
			}
			var existingIdx = -1
			for i, e := range target.Exceptions {
				if e.Name == exName {
					existingIdx = i
					break
				}
			}
			if existingIdx == -1 {
				item, err := l.parseExceptionItem(em, target.Source)
				if err != nil {
					return l.errf("rule %q: %v", name, err)
				}
				target.Exceptions = append(target.Exceptions, item)
				continue
			}
			if has(em, "fields") || has(em, "comps") {
				return l.errf("rule %q: append to exception %q may not change fields/comps", name, exName)
			}
			newVals, hasVals := toExceptionValues(em["values"], len(target.Exceptions[existingIdx].Fields))
			if hasVals {
				target.Exceptions[existingIdx].Values = append(target.Exceptions[existingIdx].Values, newVals...)
			}
		}
	}

	if hasCondition {
		target.Condition = target.Condition + " " + condition
	}
	target.Context = target.Context + "\n" + ctx
	return nil
}

func (l *loader) parseExceptions(raw interface{}, source string) ([]catalog.ExceptionItem, error) {
	if raw == nil {
		return nil, nil
	}
	seq, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("exceptions must be a sequence")
	}
	out := make([]catalog.ExceptionItem, 0, len(seq))
	seen := map[string]bool{}
	for _, r := range seq {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("exception item must be a mapping")
		}
		item, err := l.parseExceptionItem(m, source)
		if err != nil {
			return nil, err
		}
		if seen[item.Name] {
			return nil, fmt.Errorf("duplicate exception name %q", item.Name)
		}
		seen[item.Name] = true
		out = append(out, item)
	}
	return out, nil
}

func (l *loader) parseExceptionItem(m map[string]interface{}, source string) (catalog.ExceptionItem, error) {
	name, _ := toString(m["name"])
	if name == "" {
		return catalog.ExceptionItem{}, fmt.Errorf("exception missing a name")
	}
	if _, hasFields := m["fields"]; !hasFields {
		return catalog.ExceptionItem{}, fmt.Errorf("exception %q missing fields", name)
	}

	var fields, comps []string
	switch fv := m["fields"].(type) {
	case string:
		fields = []string{fv}
		comp := "in"
		if cv, ok := m["comps"]; ok {
			cs, ok := cv.(string)
			if !ok {
				return catalog.ExceptionItem{}, fmt.Errorf("exception %q: comps must be a scalar to match scalar fields", name)
			}
			comp = cs
		}
		if !l.isDefinedField(source, fields[0]) {
			return catalog.ExceptionItem{}, fmt.Errorf("exception %q: undefined field %q", name, fields[0])
		}
		if !isDefinedComp(comp) {
			return catalog.ExceptionItem{}, fmt.Errorf("exception %q: undefined comparison operator %q", name, comp)
		}
		comps = []string{comp}
	case []interface{}:
		fs, _ := toStringSlice(fv)
		fields = fs
		cs := make([]string, len(fields))
		for i := range cs {
			cs[i] = "="
		}
		if cv, ok := m["comps"]; ok {
			seq, ok := cv.([]interface{})
			if !ok {
				return catalog.ExceptionItem{}, fmt.Errorf("exception %q: comps must be a sequence to match sequence fields", name)
			}
			vals, _ := toStringSlice(seq)
			if len(vals) != len(fields) {
				return catalog.ExceptionItem{}, fmt.Errorf("exception %q: comps length %d != fields length %d", name, len(vals), len(fields))
			}
			cs = vals
		}
		for i, f := range fields {
			if !l.isDefinedField(source, f) {
				return catalog.ExceptionItem{}, fmt.Errorf("exception %q: undefined field %q", name, f)
			}
			if !isDefinedComp(cs[i]) {
				return catalog.ExceptionItem{}, fmt.Errorf("exception %q: undefined comparison operator %q", name, cs[i])
			}
		}
		comps = cs
	default:
		return catalog.ExceptionItem{}, fmt.Errorf("exception %q: fields must be a scalar or sequence", name)
	}

	values, _ := toExceptionValues(m["values"], len(fields))

	return catalog.ExceptionItem{
		Name:   name,
		Fields: fields,
		Comps:  comps,
		Values: values,
	}, nil
}

func (l *loader) isDefinedField(source, name string) bool {
	if l.host == nil {
		return true
	}
	return l.host.IsDefinedField(source, name)
}

func isDefinedComp(op string) bool {
	_, ok := rulesengine.DefinedComparisonOps[op]
	return ok
}

func toExceptionValues(raw interface{}, nFields int) ([]catalog.ExceptionValue, bool) {
	if raw == nil {
		return nil, false
	}
	seq, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]catalog.ExceptionValue, 0, len(seq))
	for _, v := range seq {
		if nFields <= 1 {
			s, _ := toString(v)
			out = append(out, catalog.ExceptionValue{Scalar: s})
			continue
		}
		row, ok := v.([]interface{})
		if !ok {
			// A bare scalar standing in for the whole row is out of scope
			// for this loader's validation; treat the tuple as length-1 so
			// the lowerer reports the mismatch.
			s, _ := toString(v)
			out = append(out, catalog.ExceptionValue{Tuple: []any{s}})
			continue
		}
		tuple := make([]any, 0, len(row))
		for _, elem := range row {
			switch e := elem.(type) {
			case []interface{}:
				ss, _ := toStringSlice(e)
				tuple = append(tuple, ss)
			default:
				s, _ := toString(e)
				tuple = append(tuple, s)
			}
		}
		out = append(out, catalog.ExceptionValue{Tuple: tuple})
	}
	return out, true
}

func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case nil:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

func toBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func toStringSlice(v interface{}) ([]string, bool) {
	seq, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(seq))
	for _, e := range seq {
		s, _ := toString(e)
		out = append(out, s)
	}
	return out, true
}
