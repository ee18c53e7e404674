package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeNull    SchemaType = "null"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// UnmarshalJSON accepts both `"type": "string"` and the union form
// `"type": ["string", "null"]`; a union with more than one type is left
// unconstrained.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = SchemaType(single)
		return nil
	}
	var union []string
	if err := json.Unmarshal(data, &union); err != nil {
		return fmt.Errorf("invalid schema type %s", string(data))
	}
	if len(union) == 1 {
		*t = SchemaType(union[0])
	} else {
		*t = ""
	}
	return nil
}

// PlaceholderProperty is injected into object schemas that declare no
// properties, so function-calling layers always have one parameter to describe.
const PlaceholderProperty = "input"

// JSONSchema represents the subset of JSON Schema used by tool declarations.
type JSONSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type SchemaType `json:"type,omitempty"`

	// Object properties
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array items
	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	Enum []any `json:"enum,omitempty"`

	// String constraints
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Numeric constraints
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	Default any `json:"default,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       SchemaTypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: SchemaTypeArray, Items: items}
}

// NewStringSchema creates a new string schema.
func NewStringSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeString}
}

// NewIntegerSchema creates a new integer schema.
func NewIntegerSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeInteger}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeNumber}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema() *JSONSchema {
	return &JSONSchema{Type: SchemaTypeBoolean}
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired adds required field names.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

// WithDescription sets the description.
func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// ToJSON serializes the schema to JSON.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON deserializes a schema from JSON.
func FromJSON(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// FromMap converts a decoded schema object (as advertised by a remote server)
// into a JSONSchema. A nil map yields an empty object schema.
func FromMap(m map[string]any) (*JSONSchema, error) {
	if m == nil {
		return NewObjectSchema(), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return FromJSON(data)
}

// EnsureParameter returns the schema unchanged when it declares at least one
// property; otherwise it returns an object schema carrying a single string
// placeholder property.
func (s *JSONSchema) EnsureParameter() *JSONSchema {
	if s != nil && len(s.Properties) > 0 {
		return s
	}
	out := NewObjectSchema()
	if s != nil {
		out.Title = s.Title
		out.Description = s.Description
	}
	out.AddProperty(PlaceholderProperty, NewStringSchema().WithDescription("Free-form input"))
	return out
}

// Validate checks a JSON document against the schema. An empty document is
// treated as an empty object.
func (s *JSONSchema) Validate(data json.RawMessage) error {
	if s == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return s.validateValue("$", v)
}

func (s *JSONSchema) validateValue(path string, v any) error {
	if len(s.Enum) > 0 && !enumContains(s.Enum, v) {
		return fmt.Errorf("%s: value not in enum", path)
	}

	// 未识别的类型不做约束
	switch s.Type {
	case SchemaTypeNull:
		if v != nil {
			return fmt.Errorf("%s: expected null", path)
		}
	case SchemaTypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	case SchemaTypeString:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: expected string", path)
		}
		return s.validateString(path, str)
	case SchemaTypeInteger, SchemaTypeNumber:
		num, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("%s: expected %s", path, s.Type)
		}
		return s.validateNumber(path, num)
	case SchemaTypeArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		return s.validateArray(path, arr)
	case SchemaTypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}
		return s.validateObject(path, obj)
	}
	return nil
}

func (s *JSONSchema) validateString(path, str string) error {
	n := len([]rune(str))
	if s.MinLength != nil && n < *s.MinLength {
		return fmt.Errorf("%s: length %d below minimum %d", path, n, *s.MinLength)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		return fmt.Errorf("%s: length %d above maximum %d", path, n, *s.MaxLength)
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid pattern %q: %w", path, s.Pattern, err)
		}
		if !re.MatchString(str) {
			return fmt.Errorf("%s: does not match pattern %q", path, s.Pattern)
		}
	}
	return nil
}

func (s *JSONSchema) validateNumber(path string, num json.Number) error {
	if s.Type == SchemaTypeInteger {
		if _, err := num.Int64(); err != nil {
			return fmt.Errorf("%s: expected integer", path)
		}
	}
	f, err := num.Float64()
	if err != nil {
		return fmt.Errorf("%s: invalid number", path)
	}
	if s.Minimum != nil && f < *s.Minimum {
		return fmt.Errorf("%s: %v below minimum %v", path, f, *s.Minimum)
	}
	if s.Maximum != nil && f > *s.Maximum {
		return fmt.Errorf("%s: %v above maximum %v", path, f, *s.Maximum)
	}
	return nil
}

func (s *JSONSchema) validateArray(path string, arr []any) error {
	if s.MinItems != nil && len(arr) < *s.MinItems {
		return fmt.Errorf("%s: %d items below minimum %d", path, len(arr), *s.MinItems)
	}
	if s.MaxItems != nil && len(arr) > *s.MaxItems {
		return fmt.Errorf("%s: %d items above maximum %d", path, len(arr), *s.MaxItems)
	}
	if s.Items == nil {
		return nil
	}
	for i, item := range arr {
		if err := s.Items.validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONSchema) validateObject(path string, obj map[string]any) error {
	var missing []string
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required field(s): %s", path, strings.Join(missing, ", "))
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		prop, ok := s.Properties[k]
		if !ok {
			if s.AdditionalProperties != nil && !*s.AdditionalProperties {
				return fmt.Errorf("%s: unexpected field %q", path, k)
			}
			continue
		}
		if err := prop.validateValue(path+"."+k, obj[k]); err != nil {
			return err
		}
	}
	return nil
}

func enumContains(enum []any, v any) bool {
	got, err := json.Marshal(v)
	if err != nil {
		return false
	}
	for _, e := range enum {
		want, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if bytes.Equal(got, want) {
			return true
		}
	}
	return false
}
