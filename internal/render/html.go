// Package render builds the content of complete-HTML emails: the HTML body
// from an html/template file, and the subject, name and text lines from
// {{variable}} templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pardreamin/prospectsync/internal/pathutil"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// EmailData is what the HTML template renders.
type EmailData struct {
	Recipient prospect.Recipient
	Listings  []prospect.Listing
}

// Renderer renders the HTML body of the weekly email.
type Renderer struct {
	tmpl *template.Template
}

// funcs are available to every HTML template.
var funcs = template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"money": formatMoney,
	"plural": func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	},
}

// LoadHTML parses the template file at path.
func LoadHTML(path string) (*Renderer, error) {
	if err := pathutil.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("email template: %w", err)
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(funcs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parsing email template %s: %w", path, err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// ParseHTML parses an inline template.
func ParseHTML(name, text string) (*Renderer, error) {
	tmpl, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing email template %s: %w", name, err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the template for one recipient.
func (r *Renderer) Render(data EmailData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering email for %s: %w", data.Recipient.ID, err)
	}
	return buf.String(), nil
}

// formatMoney renders a numeric string with thousands separators. Values that
// are not whole numbers are returned unchanged.
func formatMoney(s string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return s
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
