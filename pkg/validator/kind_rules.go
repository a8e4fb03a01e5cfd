package validator

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind is the JSON-level type of a decoded value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindAny    Kind = "any"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBool, KindObject, KindArray, KindAny:
		return true
	}
	return false
}

// KindOf classifies a decoded value. Nil yields an empty kind.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return KindString
	case bool:
		return KindBool
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct:
		return KindObject
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	}
	return KindAny
}

// RequiredKey validates that a key is present in m with a non-nil value.
func RequiredKey(field string, m map[string]any) Rule {
	return Rule{
		Check: func() bool {
			v, ok := m[field]
			return ok && v != nil
		},
		Error: ValidationError{
			Field:             field,
			Message:           "field is required",
			TranslationKey:    "validation.required",
			TranslationValues: map[string]any{"field": field},
		},
	}
}

// ValueKind validates that value has the expected kind.
// Nil values pass; presence is RequiredKey's concern.
func ValueKind(field string, value any, kind Kind) Rule {
	return Rule{
		Check: func() bool {
			if value == nil || kind == KindAny {
				return true
			}
			return KindOf(value) == kind
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be of type %s, got %s", kind, KindOf(value)),
			TranslationKey: "validation.kind",
			TranslationValues: map[string]any{
				"field": field,
				"kind":  string(kind),
			},
		},
	}
}
