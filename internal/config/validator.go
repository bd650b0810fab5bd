package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const schemaURL = "https://pardreamin.com/schemas/prospectsync/v1/app-schema.json"

//go:embed schema/app-schema.json
var embeddedSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

var messages = message.NewPrinter(language.English)

// GetEmbeddedSchema returns the JSON Schema configuration files are checked
// against.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc interface{}
		if err := json.Unmarshal(embeddedSchema, &doc); err != nil {
			schemaErr = fmt.Errorf("decoding embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("adding embedded schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateConfig checks parsed configuration data against the embedded
// schema. Every violation is reported, deepest first within a section.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	if len(data) == 0 {
		return invalid(ValidationError{Path: "/", Type: "required", Message: "configuration is empty"})
	}
	schema, err := getCompiledSchema()
	if err != nil {
		return invalid(ValidationError{Path: "/", Type: "schema", Message: err.Error()})
	}

	err = schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return invalid(ValidationError{Path: "/", Type: "validation", Message: err.Error()})
	}
	errs := flatten(verr, nil)
	if len(errs) == 0 {
		errs = append(errs, ValidationError{Path: "/", Type: "validation", Message: verr.Error()})
	}
	return &ValidationResult{Errors: errs}
}

func invalid(e ValidationError) *ValidationResult {
	return &ValidationResult{Errors: []ValidationError{e}}
}

// flatten collects the leaf violations of a jsonschema error tree. Inner
// nodes only say that a subschema failed and are skipped.
func flatten(e *jsonschema.ValidationError, out []ValidationError) []ValidationError {
	if len(e.Causes) == 0 && e.ErrorKind != nil {
		return append(out, ValidationError{
			Path:    pointer(e.InstanceLocation),
			Type:    keyword(e.ErrorKind),
			Message: e.ErrorKind.LocalizedString(messages),
		})
	}
	for _, cause := range e.Causes {
		out = flatten(cause, out)
	}
	return out
}

func pointer(loc []string) string {
	return "/" + strings.Join(loc, "/")
}

// keyword names the schema keyword that failed: required, maximum, enum...
func keyword(k jsonschema.ErrorKind) string {
	path := k.KeywordPath()
	if len(path) == 0 {
		return "validation"
	}
	return path[len(path)-1]
}
