package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ValueKind identifies which member of a FieldValue is populated.
type ValueKind int

// Field value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindList
	KindBool
)

// FieldValue is a single extracted field: a string, a number, a boolean or
// a list of strings. The zero value is null.
type FieldValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// String builds a string FieldValue.
func String(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }

// Number builds a numeric FieldValue.
func Number(n float64) FieldValue { return FieldValue{Kind: KindNumber, Num: n} }

// Bool builds a boolean FieldValue.
func Bool(b bool) FieldValue { return FieldValue{Kind: KindBool, Bool: b} }

// List builds a list FieldValue.
func List(items ...string) FieldValue {
	return FieldValue{Kind: KindList, List: append([]string{}, items...)}
}

// IsNull reports whether the value is absent.
func (v FieldValue) IsNull() bool { return v.Kind == KindNull }

// Truthy reports whether the value carries content: a non-empty string, a
// non-zero number, true or a non-empty list.
func (v FieldValue) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str != ""
	case KindNumber:
		return v.Num != 0
	case KindList:
		return len(v.List) > 0
	default:
		return false
	}
}

// Text renders the value as a plain string. Lists are joined with ", ".
func (v FieldValue) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	default:
		return ""
	}
}

// Strings returns the value as a list: the list itself, a one-element list
// for scalars, or nil for null, false and empty strings.
func (v FieldValue) Strings() []string {
	switch v.Kind {
	case KindList:
		return v.List
	case KindString:
		if v.Str == "" {
			return nil
		}
		return []string{v.Str}
	case KindNumber:
		return []string{v.Text()}
	case KindBool:
		if !v.Bool {
			return nil
		}
		return []string{v.Text()}
	default:
		return nil
	}
}

// Raw returns the value as a plain Go value suitable for evidence maps.
func (v FieldValue) Raw() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		return v.List
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// UnmarshalJSON implements json.Unmarshaler. Empty objects decode to null,
// other objects keep their JSON text; list elements are stringified.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal field value")
	}
	*v = ValueOf(raw)
	return nil
}

// ValueOf converts a decoded JSON value into a FieldValue.
func ValueOf(raw any) FieldValue {
	switch t := raw.(type) {
	case nil:
		return FieldValue{}
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case bool:
		return Bool(t)
	case map[string]any:
		if len(t) == 0 {
			return FieldValue{}
		}
		b, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return String(string(b))
	case []string:
		return List(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			items = append(items, ValueOf(item).Text())
		}
		return FieldValue{Kind: KindList, List: items}
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return String(string(b))
	}
}

// Fields maps field names to extracted values.
type Fields map[string]FieldValue

// Get returns the named value, or null when absent.
func (f Fields) Get(name string) FieldValue {
	if f == nil {
		return FieldValue{}
	}
	return f[name]
}

// FieldsFromMap converts a decoded JSON object into Fields.
func FieldsFromMap(m map[string]any) Fields {
	out := make(Fields, len(m))
	for k, raw := range m {
		out[k] = ValueOf(raw)
	}
	return out
}
