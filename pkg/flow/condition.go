// Package flow evaluates flow-router conditions against a player's state
// and resolves which page a router sends the player to.
//
// Evaluation is pure: it never mutates its inputs, never panics, and
// treats anything it cannot understand as false.
package flow

import (
	"encoding/json"
	"fmt"
)

// ConditionType tags the variant of a Condition node.
type ConditionType string

// Condition variants.
const (
	TypeVariable  ConditionType = "variable"
	TypeInventory ConditionType = "inventory"
	TypeScore     ConditionType = "score"
	TypeAnd       ConditionType = "and"
	TypeOr        ConditionType = "or"
	TypeNot       ConditionType = "not"
)

// Operator is a comparator used by variable and score conditions.
type Operator string

// Comparators.
const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpContains  Operator = "contains"
	OpExists    Operator = "exists"
	OpUndefined Operator = "undefined"
)

// MaxDepth bounds condition nesting. Deeper trees evaluate to false.
const MaxDepth = 32

// Condition is one node of a condition tree. Which fields are read depends
// on Type:
//
//	variable:  Key, Op, Value
//	inventory: Item
//	score:     Op, Value
//	and, or:   Conditions
//	not:       Condition
type Condition struct {
	Type       ConditionType `json:"type"`
	Key        string        `json:"key,omitempty"`
	Op         Operator      `json:"op,omitempty"`
	Value      any           `json:"value,omitempty"`
	Item       string        `json:"item,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
	Condition  *Condition    `json:"condition,omitempty"`
}

// Context is the snapshot of player state a condition is evaluated against.
type Context struct {
	Variables map[string]any
	Inventory []string
	Score     int
}

// UnmarshalJSON decodes a condition node. A node that cannot be decoded
// (wrong JSON shape, wrong field types) becomes an empty node, which
// evaluates to false, instead of failing the whole router config.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*c = Condition{}
		return nil //nolint:nilerr // corrupt nodes degrade to never-matching
	}
	*c = Condition(p)
	return nil
}

// Variable builds a variable comparison.
func Variable(key string, op Operator, value any) Condition {
	return Condition{Type: TypeVariable, Key: key, Op: op, Value: value}
}

// HasItem builds an inventory-contains check.
func HasItem(item string) Condition {
	return Condition{Type: TypeInventory, Item: item}
}

// Score builds a score threshold check.
func Score(op Operator, value int) Condition {
	return Condition{Type: TypeScore, Op: op, Value: value}
}

// And builds a conjunction.
func And(conds ...Condition) Condition {
	return Condition{Type: TypeAnd, Conditions: conds}
}

// Or builds a disjunction.
func Or(conds ...Condition) Condition {
	return Condition{Type: TypeOr, Conditions: conds}
}

// Not inverts a condition.
func Not(cond Condition) Condition {
	return Condition{Type: TypeNot, Condition: &cond}
}

// Validate reports the first structural problem in a condition tree. The
// editor uses it to reject bad configs early; Evaluate does not require it.
func Validate(c Condition) error {
	return validate(c, 0, "condition")
}

func validate(c Condition, depth int, path string) error {
	if depth >= MaxDepth {
		return fmt.Errorf("%s: nesting exceeds %d levels", path, MaxDepth)
	}
	switch c.Type {
	case TypeVariable:
		if c.Key == "" {
			return fmt.Errorf("%s: variable condition requires key", path)
		}
		if !knownVariableOp(c.Op) {
			return fmt.Errorf("%s: unsupported variable operator %q", path, c.Op)
		}
		if (c.Op == OpIn || c.Op == OpNotIn) && !isList(c.Value) {
			return fmt.Errorf("%s: operator %q requires a list value", path, c.Op)
		}
	case TypeInventory:
		if c.Item == "" {
			return fmt.Errorf("%s: inventory condition requires item", path)
		}
	case TypeScore:
		if !knownScoreOp(c.Op) {
			return fmt.Errorf("%s: unsupported score operator %q", path, c.Op)
		}
		if _, ok := toFloat(c.Value); !ok {
			return fmt.Errorf("%s: score condition requires numeric value", path)
		}
	case TypeAnd, TypeOr:
		for i, child := range c.Conditions {
			if err := validate(child, depth+1, fmt.Sprintf("%s.%s[%d]", path, c.Type, i)); err != nil {
				return err
			}
		}
	case TypeNot:
		if c.Condition == nil {
			return fmt.Errorf("%s: not condition requires a child", path)
		}
		return validate(*c.Condition, depth+1, path+".not")
	default:
		return fmt.Errorf("%s: unknown condition type %q", path, c.Type)
	}
	return nil
}

func knownVariableOp(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains, OpExists, OpUndefined:
		return true
	}
	return false
}

func knownScoreOp(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}
