// Package coerce normalises expression results and identifier values into
// the shapes template rendering and document addressing need.
package coerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// String renders value for inclusion in a resolved template. Nil renders as
// the empty string, the chosen convention for absent context fields.
func String(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case fmt.Stringer:
		return typed.String()
	case error:
		return typed.Error()
	}
	return fmt.Sprint(value)
}

// IsZero reports whether value is nil or its type's zero value, the test
// addressing uses to decide whether an identifier still needs generating.
func IsZero(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	return v.IsZero()
}

// Map flattens a struct (or pointer to one) into a map[string]any through
// its JSON representation, for engines without a native view of Go structs.
// Maps pass through, everything else yields an empty map.
func Map(value any) map[string]any {
	if value == nil {
		return map[string]any{}
	}
	if m, ok := value.(map[string]any); ok {
		return m
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]any{}
	}

	payload, err := json.Marshal(v.Interface())
	if err != nil {
		return map[string]any{}
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	out := map[string]any{}
	if err := decoder.Decode(&out); err != nil {
		return map[string]any{}
	}
	return out
}
