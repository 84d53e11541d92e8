// Package schema embeds and enforces the cellkernel.yml JSON Schema.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed cellkernel.schema.json
var embeddedSchemaData []byte

const schemaURL = "cellkernel.schema.json"

// Violation is one failed schema keyword at a document location.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// ValidationError lists every violation found in one document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = "- " + v.String()
	}
	return "schema validation failed:\n" + strings.Join(lines, "\n")
}

// Validator checks configuration documents against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
}

var (
	compileOnce sync.Once
	compiled    *Validator
	compileErr  error
)

// Default returns the shared validator, compiling the schema on first use.
func Default() (*Validator, error) {
	compileOnce.Do(func() {
		compiled, compileErr = NewValidator()
	})
	return compiled, compileErr
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(embeddedSchemaData)); err != nil {
		return nil, fmt.Errorf("failed to add embedded schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks any JSON-marshalable value. Schema failures come back as
// *ValidationError with violations sorted by path.
func (v *Validator) Validate(doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config for validation: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to decode config for validation: %w", err)
	}

	err = v.schema.Validate(generic)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	var out []Violation
	collect(verr, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return &ValidationError{Violations: out}
}

// collect keeps leaf causes; parents only summarise them.
func collect(err *jsonschema.ValidationError, out *[]Violation) {
	if len(err.Causes) == 0 {
		path := err.InstanceLocation
		if path == "" {
			path = "/"
		}
		*out = append(*out, Violation{Path: path, Message: err.Message})
		return
	}
	for _, cause := range err.Causes {
		collect(cause, out)
	}
}
