package config

import (
	"fmt"
	"strings"
)

// Parse error types
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
	ErrorTypeEnv    = "env"
)

// ParseResult is a configuration file decoded into a generic map.
type ParseResult struct {
	Data     map[string]interface{}
	Errors   []ParseError
	FilePath string
	// Format is FormatJSON or FormatYAML, empty when undetectable
	Format string
}

// IsValid reports whether the file decoded cleanly.
func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ParseError locates a decoding failure. Line and Column are 1-based and zero
// when unknown.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Offset  int64
	Message string
	Type    string
}

func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path + ": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationResult is the outcome of a schema check.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is one schema violation. Path is a JSON pointer into the
// configuration, e.g. /pardot/maxBatchSize.
type ValidationError struct {
	Path    string
	Type    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Report is what Check found in a configuration file once the environment
// overlay is applied.
type Report struct {
	Data             map[string]interface{}
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
	FilePath         string
	Format           string
	// EnvOverrides counts the PROSPECTSYNC_* variables applied
	EnvOverrides int
}

// IsValid reports whether the file parsed and passed the schema.
func (r *Report) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns the parse errors followed by the validation errors.
func (r *Report) AllErrors() []error {
	all := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		all = append(all, e)
	}
	for _, e := range r.ValidationErrors {
		all = append(all, e)
	}
	return all
}
