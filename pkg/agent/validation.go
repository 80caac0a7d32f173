package agent

import (
	"bytes"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateJSON validates a raw JSON document against schema.
// Numbers are decoded as json.Number so integer constraints see exact values.
func ValidateJSON(schema []byte, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	sch, err := compile(schema)
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}

// Schema is a compiled JSON schema that can be reused across requests.
type Schema struct {
	sch *jsonschema.Schema
}

// MustCompileSchema compiles schema or panics. Intended for embedded schemas.
func MustCompileSchema(schema []byte) *Schema {
	sch, err := compile(schema)
	if err != nil {
		panic(err)
	}
	return &Schema{sch: sch}
}

// Validate checks an already-decoded document (maps, slices, json.Number, ...).
func (s *Schema) Validate(doc any) error {
	if s == nil || s.sch == nil {
		return nil
	}
	return s.sch.Validate(doc)
}

// ValidateJSON checks a raw JSON document.
func (s *Schema) ValidateJSON(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return s.Validate(doc)
}

func compile(schema []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource("mem://schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("mem://schema.json")
}
