package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CondKind discriminates the closed set of condition predicates a rule
// catalog may use. Anything else is a catalog error, never a silent no-op.
type CondKind string

const (
	// CondEquals matches when the field equals a literal (string, bool, number).
	CondEquals CondKind = "equals"
	// CondAtLeast matches when the numeric field is >= the threshold.
	CondAtLeast CondKind = "at_least"
	// CondContainsAll matches when the list field contains every listed value.
	CondContainsAll CondKind = "contains_all"
	// CondContainsAny matches when the list field shares any listed value.
	CondContainsAny CondKind = "contains_any"
)

// Condition is one predicate over a symptom's reported details.
type Condition struct {
	Kind  CondKind
	Field string

	// Equals payload: string, bool, or float64.
	Value any
	// AtLeast payload.
	Threshold float64
	// ContainsAll / ContainsAny payload, lowercased at load time.
	Values []string
}

// condJSON is the wire form of a condition.
type condJSON struct {
	Type   string          `json:"type"`
	Field  string          `json:"field"`
	Value  json.RawMessage `json:"value,omitempty"`
	Values []string        `json:"values,omitempty"`
}

// UnmarshalJSON validates the closed predicate set at decode time so a
// malformed catalog fails startup instead of misfiring later.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw condJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Field == "" {
		return fmt.Errorf("condition missing field")
	}
	c.Field = raw.Field

	switch CondKind(raw.Type) {
	case CondEquals:
		c.Kind = CondEquals
		if len(raw.Value) == 0 {
			return fmt.Errorf("equals condition on %q missing value", raw.Field)
		}
		var v any
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("equals condition on %q: %w", raw.Field, err)
		}
		switch v.(type) {
		case string, bool, float64:
			c.Value = v
		default:
			return fmt.Errorf("equals condition on %q: value must be string, bool, or number", raw.Field)
		}

	case CondAtLeast:
		c.Kind = CondAtLeast
		if len(raw.Value) == 0 {
			return fmt.Errorf("at_least condition on %q missing value", raw.Field)
		}
		var v float64
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return fmt.Errorf("at_least condition on %q: value must be a number", raw.Field)
		}
		c.Threshold = v

	case CondContainsAll, CondContainsAny:
		c.Kind = CondKind(raw.Type)
		if len(raw.Values) == 0 {
			return fmt.Errorf("%s condition on %q requires non-empty values", raw.Type, raw.Field)
		}
		c.Values = make([]string, len(raw.Values))
		for i, v := range raw.Values {
			if v == "" {
				return fmt.Errorf("%s condition on %q has an empty value", raw.Type, raw.Field)
			}
			c.Values[i] = strings.ToLower(v)
		}

	case "":
		return fmt.Errorf("condition on %q missing type", raw.Field)
	default:
		return fmt.Errorf("unknown condition type %q", raw.Type)
	}

	return nil
}

// Eval reports whether the condition holds for the given symptom details.
// Missing fields and type mismatches evaluate false; user input never
// produces an error here. String comparisons are case-insensitive.
func (c Condition) Eval(details Details) bool {
	raw, ok := details[c.Field]
	if !ok {
		return false
	}

	switch c.Kind {
	case CondEquals:
		return equalsValue(raw, c.Value)
	case CondAtLeast:
		n, ok := toFloat(raw)
		return ok && n >= c.Threshold
	case CondContainsAll:
		have := toStringSet(raw)
		for _, want := range c.Values {
			if !have[want] {
				return false
			}
		}
		return true
	case CondContainsAny:
		have := toStringSet(raw)
		for _, want := range c.Values {
			if have[want] {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func equalsValue(raw, want any) bool {
	switch w := want.(type) {
	case string:
		s, ok := raw.(string)
		return ok && strings.EqualFold(s, w)
	case bool:
		b, ok := raw.(bool)
		return ok && b == w
	case float64:
		n, ok := toFloat(raw)
		return ok && n == w
	default:
		return false
	}
}

// toFloat accepts the numeric types that reach us from JSON decoding and
// from Go callers in tests and tools.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toStringSet lowers and collects a list-valued detail. A bare string is
// treated as a single-element list so "accompanied_by": "fever" still works.
func toStringSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch vv := v.(type) {
	case string:
		set[strings.ToLower(vv)] = true
	case []string:
		for _, s := range vv {
			set[strings.ToLower(s)] = true
		}
	case []any:
		for _, item := range vv {
			if s, ok := item.(string); ok {
				set[strings.ToLower(s)] = true
			}
		}
	}
	return set
}
