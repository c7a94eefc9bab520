package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports a tool argument that does not match the tool's
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON object schema from a struct value.
//
// Field names come from the json tag. A field is required unless it is a
// pointer or tagged omitempty. The description tag becomes the property
// description and a comma separated enum tag restricts string values:
//
//	Kind string `json:"kind" description:"Process kind" enum:"branch,worker"`
func CreateSchema(structValue any) map[string]any {
	t := reflect.TypeOf(structValue)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return objectSchema(t)
}

func objectSchema(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, omitEmpty, ok := jsonField(field)
		if !ok {
			continue
		}

		prop := typeSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			prop["enum"] = strings.Split(enum, ",")
		}
		properties[name] = prop

		if !omitEmpty && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// jsonField resolves the property name of an exported field. ok is false for
// unexported and json:"-" fields.
func jsonField(field reflect.StructField) (name string, omitEmpty, ok bool) {
	if !field.IsExported() {
		return "", false, false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}

	name = field.Name
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, true
}

func typeSchema(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.Ptr:
		return typeSchema(t.Elem())
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Map:
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "string"}
	}
}

// ValidateParameters checks decoded tool arguments against a schema built by
// CreateSchema or decoded from JSON. It checks required names, property
// types, array item types and string enums. Unknown arguments are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(name, value, prop); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field string, value any, prop map[string]any) error {
	if value == nil {
		return nil
	}

	expected, _ := prop["type"].(string)
	if !matchesType(value, expected) {
		return &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %T", expected, value),
		}
	}

	if enum := stringList(prop["enum"]); len(enum) > 0 {
		if s, ok := value.(string); ok && !slices.Contains(enum, s) {
			return &ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("must be one of %s", strings.Join(enum, ", ")),
			}
		}
	}

	if items, ok := prop["items"].(map[string]any); ok {
		if list, ok := value.([]any); ok {
			for i, item := range list {
				if err := validateValue(fmt.Sprintf("%s[%d]", field, i), item, items); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// stringList accepts the []string of CreateSchema and the []any of a decoded
// JSON schema.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			// encoding/json decodes every number as float64
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
