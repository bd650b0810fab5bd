package render

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Template syntax constants
const (
	TemplatePrefix = "{{"
	TemplateSuffix = "}}"
)

const errMsgInvalidTemplateSyntax = "invalid template syntax"

// templateVarRegex matches {{path}} or {{path | default: "value"}}.
// Group 1: variable path
// Group 2: optional default clause
// Group 3: the default value itself (may be empty string)
var templateVarRegex = regexp.MustCompile(`\{\{\s*([^|}]+?)(\s*\|\s*default:\s*"([^"]*)")?\s*\}\}`)

var emptyBracesRegex = regexp.MustCompile(`\{\{\s*\}\}`)

// Variable is one parsed template variable.
type Variable struct {
	FullMatch    string
	Path         string
	DefaultValue string
	HasDefault   bool
}

// Evaluator fills {{variable}} templates used for email subject, name and
// text content:
//
//	Here are {{count}} Listings Waiting for You!
//	Hi {{recipient.firstName | default: "there"}}
//
// A variable whose first path segment is not in the data is left untouched,
// so Pardot merge tags such as {{EmailPreferenceCenter}} reach Pardot as
// written. Parsed templates are cached; an Evaluator is not safe for
// concurrent use.
type Evaluator struct {
	cache map[string][]Variable
}

// NewEvaluator creates a new template evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string][]Variable)}
}

// HasVariables checks if a string contains template variables.
func HasVariables(s string) bool {
	return strings.Contains(s, TemplatePrefix) && strings.Contains(s, TemplateSuffix)
}

// ParseVariables extracts all template variables from a template string.
func (e *Evaluator) ParseVariables(template string) []Variable {
	if cached, ok := e.cache[template]; ok {
		return cached
	}

	matches := templateVarRegex.FindAllStringSubmatch(template, -1)
	variables := make([]Variable, 0, len(matches))
	for _, match := range matches {
		v := Variable{
			FullMatch: match[0],
			Path:      strings.TrimSpace(match[1]),
		}
		if match[2] != "" {
			v.DefaultValue = match[3]
			v.HasDefault = true
		}
		variables = append(variables, v)
	}

	e.cache[template] = variables
	return variables
}

// Evaluate replaces the template variables with values from data.
func (e *Evaluator) Evaluate(template string, data map[string]interface{}) string {
	if !HasVariables(template) {
		return template
	}
	variables := e.ParseVariables(template)
	if len(variables) == 0 {
		return template
	}

	result := template
	for _, v := range variables {
		value, ok := e.resolveVariable(v, data)
		if !ok {
			continue
		}
		result = strings.Replace(result, v.FullMatch, value, 1)
	}
	return result
}

// resolveVariable returns the replacement for v, or false when v belongs to
// Pardot and must be kept.
func (e *Evaluator) resolveVariable(v Variable, data map[string]interface{}) (string, bool) {
	root := strings.SplitN(v.Path, ".", 2)[0]
	if _, known := data[root]; !known {
		return "", false
	}

	value, found := GetNestedValue(data, v.Path)
	if !found || value == nil || value == "" {
		if v.HasDefault {
			return v.DefaultValue, true
		}
		logger.Warn("template variable missing, using empty string",
			slog.String("path", v.Path),
		)
		return "", true
	}
	return prospect.ValueToString(value), true
}

// GetNestedValue extracts a value from nested maps using dot notation.
func GetNestedValue(obj map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	current := interface{}(obj)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		current = val
	}
	return current, true
}

// ValidateSyntax reports unmatched or empty {{ }} delimiters.
func ValidateSyntax(template string) error {
	if template == "" {
		return nil
	}
	openCount := strings.Count(template, TemplatePrefix)
	closeCount := strings.Count(template, TemplateSuffix)
	if openCount != closeCount {
		return fmt.Errorf("%s: unmatched template delimiters (found %d '{{' and %d '}}')",
			errMsgInvalidTemplateSyntax, openCount, closeCount)
	}
	if openCount == 0 {
		return nil
	}
	if emptyBracesRegex.MatchString(template) {
		return fmt.Errorf("%s: empty variable path", errMsgInvalidTemplateSyntax)
	}
	remainder := templateVarRegex.ReplaceAllString(template, "")
	if strings.Contains(remainder, TemplatePrefix) || strings.Contains(remainder, TemplateSuffix) {
		return fmt.Errorf("%s: stray '{{' or '}}' found", errMsgInvalidTemplateSyntax)
	}
	return nil
}

// TextData builds the variables available to text templates: count, agent
// and recipient (keyed by the recipient CSV column names).
func TextData(r prospect.Recipient, listings []prospect.Listing) map[string]interface{} {
	return map[string]interface{}{
		"count": len(listings),
		"agent": r.Agent,
		"recipient": map[string]interface{}{
			"id":         r.ID,
			"prospectId": r.ProspectID,
			"firstName":  r.FirstName,
			"lastName":   r.LastName,
			"fullName":   r.FullName(),
			"email":      r.Email,
			"agent":      r.Agent,
		},
	}
}
