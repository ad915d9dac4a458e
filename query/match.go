package query

import (
	"cmp"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/nickyhof/GitDB/core"
)

// Matches reports whether doc satisfies every field spec of the query.
// It has no side effects.
func (q Query) Matches(doc core.Document) bool {
	for _, field := range q.fields {
		if !field.matches(doc) {
			return false
		}
	}
	return true
}

// Match parses raw and evaluates it against doc in one step.
func Match(doc core.Document, raw map[string]any) (bool, error) {
	q, err := Parse(raw)
	if err != nil {
		return false, err
	}
	return q.Matches(doc), nil
}

func (f FieldSpec) matches(doc core.Document) bool {
	value, found := lookup(map[string]any(doc), f.segments)
	if !f.IsOperator() {
		return found && equal(value, f.Literal)
	}
	for _, op := range f.Operators {
		if !op.eval(value, found) {
			return false
		}
	}
	return true
}

func (op Operator) eval(value any, found bool) bool {
	switch op.Kind {
	case OpEq:
		return found && equal(value, op.Operand)
	case OpNe:
		return !found || !equal(value, op.Operand)
	case OpGt, OpGte, OpLt, OpLte:
		if !found {
			return false
		}
		c, ok := compare(value, op.Operand)
		if !ok {
			return false
		}
		switch op.Kind {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		return found && contains(op.set, value)
	case OpNin:
		return !found || !contains(op.set, value)
	case OpRegex:
		s, ok := value.(string)
		return found && ok && op.pattern.MatchString(s)
	case OpExists:
		return found == op.exists
	}
	return false
}

// Lookup resolves a dot-separated path against doc. The boolean is false
// when any segment is absent, which is distinct from a present JSON null.
func Lookup(doc core.Document, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	return lookup(map[string]any(doc), strings.Split(path, "."))
}

func lookup(current any, segments []string) (any, bool) {
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case core.Document:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return core.Normalize(current), true
}

func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func contains(set []any, value any) bool {
	return slices.ContainsFunc(set, func(candidate any) bool {
		return equal(candidate, value)
	})
}

// compare orders two values of the same JSON type. The second result is
// false when the values are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}
