package query

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/nickyhof/GitDB/core"
)

// OpKind identifies a comparison operator.
type OpKind int

const (
	OpEq OpKind = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpRegex
	OpExists
)

var operatorNames = map[string]OpKind{
	"$eq":     OpEq,
	"$ne":     OpNe,
	"$gt":     OpGt,
	"$gte":    OpGte,
	"$lt":     OpLt,
	"$lte":    OpLte,
	"$in":     OpIn,
	"$nin":    OpNin,
	"$regex":  OpRegex,
	"$exists": OpExists,
}

// optionsKey modifies $regex and is not an operator of its own.
const optionsKey = "$options"

func (k OpKind) String() string {
	for name, kind := range operatorNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Operator is one parsed operator with its validated operand.
type Operator struct {
	Kind    OpKind
	Operand any

	pattern *regexp.Regexp
	set     []any
	exists  bool
}

// FieldSpec is the condition attached to one field path: either a literal
// compared for equality, or a list of operators that must all hold.
type FieldSpec struct {
	Path      string
	Literal   any
	Operators []Operator

	segments []string
}

// IsOperator reports whether the spec holds operators rather than a literal.
func (f FieldSpec) IsOperator() bool {
	return len(f.Operators) > 0
}

// Query is a parsed, immutable query. The zero value matches everything.
type Query struct {
	fields []FieldSpec
}

// All matches every document.
var All = Query{}

// Fields returns the parsed field specs, ordered by path.
func (q Query) Fields() []FieldSpec {
	return slices.Clone(q.fields)
}

// IsEmpty reports whether the query has no conditions.
func (q Query) IsEmpty() bool {
	return len(q.fields) == 0
}

// Parse validates raw and turns it into a Query. Malformed input is reported
// as a core.ErrValidation error.
func Parse(raw map[string]any) (Query, error) {
	paths := make([]string, 0, len(raw))
	for path := range raw {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	fields := make([]FieldSpec, 0, len(raw))
	for _, path := range paths {
		spec, err := parseField(path, raw[path])
		if err != nil {
			return Query{}, core.E(core.ErrValidation, "parse query", err)
		}
		fields = append(fields, spec)
	}
	return Query{fields: fields}, nil
}

// MustParse is like Parse but panics on error. Intended for literals in
// code and tests.
func MustParse(raw map[string]any) Query {
	q, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return q
}

func parseField(path string, value any) (FieldSpec, error) {
	if path == "" {
		return FieldSpec{}, fmt.Errorf("empty field path")
	}
	if strings.HasPrefix(path, "$") {
		return FieldSpec{}, fmt.Errorf("logical operator %s is not supported", path)
	}
	segments := strings.Split(path, ".")
	if slices.Contains(segments, "") {
		return FieldSpec{}, fmt.Errorf("invalid field path %q", path)
	}

	spec := FieldSpec{Path: path, segments: segments}

	obj, ok := asObject(value)
	if !ok {
		spec.Literal = core.Normalize(value)
		return spec, nil
	}

	dollar := 0
	for key := range obj {
		if strings.HasPrefix(key, "$") {
			dollar++
		}
	}
	switch {
	case dollar == 0:
		spec.Literal = core.Normalize(obj)
		return spec, nil
	case dollar != len(obj):
		return FieldSpec{}, fmt.Errorf("field %q mixes operators and plain keys", path)
	}

	ops, err := parseOperators(path, obj)
	if err != nil {
		return FieldSpec{}, err
	}
	spec.Operators = ops
	return spec, nil
}

func parseOperators(path string, obj map[string]any) ([]Operator, error) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		if key != optionsKey {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	if _, ok := obj[optionsKey]; ok {
		if _, hasRegex := obj["$regex"]; !hasRegex {
			return nil, fmt.Errorf("field %q: %s requires $regex", path, optionsKey)
		}
	}

	ops := make([]Operator, 0, len(keys))
	for _, key := range keys {
		kind, ok := operatorNames[key]
		if !ok {
			return nil, fmt.Errorf("field %q: unknown operator %s", path, key)
		}
		op, err := newOperator(kind, obj[key], obj[optionsKey])
		if err != nil {
			return nil, fmt.Errorf("field %q: %s: %w", path, key, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func newOperator(kind OpKind, operand any, options any) (Operator, error) {
	op := Operator{Kind: kind, Operand: core.Normalize(operand)}

	switch kind {
	case OpIn, OpNin:
		set, ok := op.Operand.([]any)
		if !ok {
			return Operator{}, fmt.Errorf("operand must be an array")
		}
		op.set = set

	case OpRegex:
		pattern, ok := operand.(string)
		if !ok {
			return Operator{}, fmt.Errorf("operand must be a string")
		}
		if options != nil {
			flags, ok := options.(string)
			if !ok {
				return Operator{}, fmt.Errorf("%s must be a string", optionsKey)
			}
			for _, f := range flags {
				if !strings.ContainsRune("ims", f) {
					return Operator{}, fmt.Errorf("unsupported regex option %q", f)
				}
			}
			if flags != "" {
				pattern = "(?" + flags + ")" + pattern
			}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Operator{}, fmt.Errorf("invalid pattern: %w", err)
		}
		op.pattern = re

	case OpExists:
		b, ok := operand.(bool)
		if !ok {
			return Operator{}, fmt.Errorf("operand must be a boolean")
		}
		op.exists = b
	}

	return op, nil
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case core.Document:
		return map[string]any(t), true
	}
	return nil, false
}
