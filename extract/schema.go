package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Record is one JSON object recovered from a token stream.
type Record map[string]any

// FieldType is a JSON primitive type name.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Integer FieldType = "integer"
	Boolean FieldType = "boolean"
	Array   FieldType = "array"
	Object  FieldType = "object"
)

func (t FieldType) valid() bool {
	switch t {
	case String, Number, Integer, Boolean, Array, Object:
		return true
	default:
		return false
	}
}

// Field describes one property of a record.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string // Shown to the model in Describe
}

// Schema is the expected shape of the records of one extraction.
type Schema struct {
	Name    string
	Key     string // Identity field used to suppress duplicate emission; empty means the whole record
	Preview string // String field surfaced through WithPartial
	Fields  []Field

	compiled *jsonschema.Schema
}

// NewSchema builds and compiles a schema. key, when not empty, must name a
// declared field.
func NewSchema(name, key string, fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "schema needs at least one field", nil)
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "field name cannot be empty", nil)
		}
		if seen[f.Name] {
			return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "duplicate field "+f.Name, nil)
		}
		if !f.Type.valid() {
			return nil, newExtractError("NewSchema", ErrCodeInvalidInput,
				fmt.Sprintf("field %s has unknown type %q", f.Name, f.Type), nil)
		}
		seen[f.Name] = true
	}
	if key != "" && !seen[key] {
		return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "key field "+key+" is not declared", nil)
	}

	s := &Schema{
		Name:   name,
		Key:    key,
		Fields: fields,
	}

	doc, err := json.Marshal(s.Document())
	if err != nil {
		return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "failed to marshal schema", err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(doc)
	if err != nil {
		return nil, newExtractError("NewSchema", ErrCodeInvalidInput, "invalid schema", err)
	}
	s.compiled = compiled

	return s, nil
}

// MustSchema is like NewSchema but panics on error. It is meant for
// package-level schema declarations.
func MustSchema(name, key string, fields ...Field) *Schema {
	s, err := NewSchema(name, key, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// WithPreview returns a copy of s whose string field is surfaced as a live
// preview in single-record mode.
func (s *Schema) WithPreview(field string) *Schema {
	cp := *s
	cp.Preview = field
	return &cp
}

// Document returns the JSON Schema document for one record.
func (s *Schema) Document() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	required := []string{}
	for _, f := range s.Fields {
		prop := map[string]any{"type": string(f.Type)}
		if f.Name == s.Key && f.Type == String {
			prop["minLength"] = 1
		}
		properties[f.Name] = prop
		if f.Required || f.Name == s.Key {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Validate checks that rec has every required field with the declared type.
func (s *Schema) Validate(rec Record) error {
	if rec == nil {
		return errNoObject
	}
	result := s.compiled.Validate(map[string]any(rec))
	if !result.IsValid() {
		return fmt.Errorf("record does not match %s schema: %s", s.Name, result.Error())
	}
	return nil
}

// Identity returns the deduplication key of rec.
func (s *Schema) Identity(rec Record) string {
	if s.Key != "" {
		return fmt.Sprint(rec[s.Key])
	}
	// encoding/json sorts map keys, so equal records give equal text.
	data, _ := json.Marshal(rec)
	return string(data)
}

// Describe renders a one-line example of the record shape for prompts.
func (s *Schema) Describe() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range s.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q: ", f.Name)
		hint := string(f.Type)
		if f.Description != "" {
			hint += ": " + f.Description
		}
		if f.Type == String {
			fmt.Fprintf(&sb, "\"<%s>\"", hint)
		} else {
			fmt.Fprintf(&sb, "<%s>", hint)
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// Decode converts a record into T through its JSON form.
func Decode[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
