package archivestore

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const archiveSchemaURL = "archive.schema.json"

//go:embed archive.schema.json
var archiveSchemaJSON []byte

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *Validator
	defaultValidatorErr  error
)

// Validator checks archive documents against the bundled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

func DefaultValidator() (*Validator, error) {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewValidator()
	})
	return defaultValidator, defaultValidatorErr
}

func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(archiveSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode archive schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(archiveSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add archive schema: %w", err)
	}
	schema, err := compiler.Compile(archiveSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile archive schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns an error wrapping ErrMalformedArchive when data is not
// JSON or does not match the archive shape.
func (v *Validator) Validate(data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	return nil
}
