package source

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Filter selects the recipients that receive this week's email. Expressions
// see one variable, recipient, with the CSV column names as keys:
//
//	recipient.agent == "Jane Doe" && recipient.email endsWith "@example.com"
type Filter struct {
	expression string
	program    *vm.Program
}

// NewFilter compiles expression. An empty expression selects everyone.
func NewFilter(expression string) (*Filter, error) {
	f := &Filter{expression: expression}
	if expression == "" {
		return f, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid recipient filter %q: %w", expression, err)
	}
	f.program = program
	return f, nil
}

// Match reports whether r is selected.
func (f *Filter) Match(r prospect.Recipient) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, map[string]interface{}{
		"recipient": map[string]interface{}{
			ColID:         r.ID,
			ColProspectID: r.ProspectID,
			ColFirstName:  r.FirstName,
			ColLastName:   r.LastName,
			ColEmail:      r.Email,
			ColAgent:      r.Agent,
		},
	})
	if err != nil {
		return false, fmt.Errorf("evaluating recipient filter for %s: %w", r.ID, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Apply returns the recipients that match, in order.
func (f *Filter) Apply(recipients []prospect.Recipient) ([]prospect.Recipient, error) {
	if f == nil || f.program == nil {
		return recipients, nil
	}
	out := make([]prospect.Recipient, 0, len(recipients))
	for _, r := range recipients {
		ok, err := f.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// String returns the expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expression
}
