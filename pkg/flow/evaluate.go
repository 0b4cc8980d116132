package flow

import (
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Evaluate reports whether cond holds for ctx.
//
// A variable comparison against a missing (or null) key is false for every
// operator except OpUndefined, which is true. Numeric operators compare
// numbers, including numeric strings compared against numbers; anything
// non-numeric makes them false. Unknown types, unknown operators, missing
// fields and trees deeper than MaxDepth are false.
func Evaluate(cond Condition, ctx Context) bool {
	return evaluate(cond, ctx, 0)
}

func evaluate(c Condition, ctx Context, depth int) bool {
	if depth >= MaxDepth {
		return false
	}
	switch c.Type {
	case TypeVariable:
		return evalVariable(c, ctx.Variables)
	case TypeInventory:
		return c.Item != "" && slices.Contains(ctx.Inventory, c.Item)
	case TypeScore:
		return evalScore(c, ctx.Score)
	case TypeAnd:
		for _, child := range c.Conditions {
			if !evaluate(child, ctx, depth+1) {
				return false
			}
		}
		return true
	case TypeOr:
		for _, child := range c.Conditions {
			if evaluate(child, ctx, depth+1) {
				return true
			}
		}
		return false
	case TypeNot:
		if c.Condition == nil {
			return false
		}
		return !evaluate(*c.Condition, ctx, depth+1)
	default:
		return false
	}
}

func evalVariable(c Condition, vars map[string]any) bool {
	if c.Key == "" {
		return false
	}
	v, ok := vars[c.Key]
	defined := ok && v != nil

	switch c.Op {
	case OpUndefined:
		return !defined
	case OpExists:
		return defined
	}
	if !defined {
		return false
	}

	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpNeq:
		return !equal(v, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareNumbers(c.Op, v, c.Value)
	case OpIn:
		list, ok := asList(c.Value)
		return ok && containsEqual(list, v)
	case OpNotIn:
		list, ok := asList(c.Value)
		return ok && !containsEqual(list, v)
	case OpContains:
		if list, ok := asList(v); ok {
			return containsEqual(list, c.Value)
		}
		s, sok := v.(string)
		sub, subok := c.Value.(string)
		return sok && subok && strings.Contains(s, sub)
	default:
		return false
	}
}

func evalScore(c Condition, score int) bool {
	if c.Op == OpNeq {
		target, ok := toFloat(c.Value)
		return ok && float64(score) != target
	}
	if !knownScoreOp(c.Op) {
		return false
	}
	return compareNumbers(c.Op, score, c.Value)
}

func compareNumbers(op Operator, a, b any) bool {
	x, ok := toFloat(a)
	if !ok {
		return false
	}
	y, ok := toFloat(b)
	if !ok {
		return false
	}
	switch op {
	case OpEq:
		return x == y
	case OpGt:
		return x > y
	case OpGte:
		return x >= y
	case OpLt:
		return x < y
	case OpLte:
		return x <= y
	default:
		return false
	}
}

// equal compares two scalar values. Strings compare as strings; a number
// compares numerically with another number or a numeric string.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if aIsString && bIsString {
		return as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func containsEqual(list []any, v any) bool {
	for _, item := range list {
		if equal(item, v) {
			return true
		}
	}
	return false
}

func isList(v any) bool {
	_, ok := asList(v)
	return ok
}

// asList converts slices of any element type into []any.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toFloat converts Go numerics, json.Number and numeric strings to float64.
// NaN is rejected so comparisons stay total.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
