// Package fields names and fills the Pardot custom fields that carry
// per-recipient listing data.
//
// A field name is produced from a template holding two placeholders:
// {field} receives the field kind ("Price", "AgentName"...) and {index}
// receives the 1-based listing number, blank for header fields. Templates are
// parsed once with ParseFormat so that a malformed template fails at startup
// instead of producing wrong field names on every call.
package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldKind identifies one of the prospect custom fields.
type FieldKind int

// Header kinds come first, line-item kinds follow in projection order.
const (
	KindCount FieldKind = iota
	KindAgentName
	KindPrice
	KindBedrooms
	KindBathrooms
	KindSqft
	KindAddress
	KindListingURL
	KindImageURL
)

var kindNames = [...]string{
	KindCount:      "Count",
	KindAgentName:  "AgentName",
	KindPrice:      "Price",
	KindBedrooms:   "Bedrooms",
	KindBathrooms:  "Bathrooms",
	KindSqft:       "Sqft",
	KindAddress:    "Address",
	KindListingURL: "ListingUrl",
	KindImageURL:   "ImageUrl",
}

// String returns the name substituted for {field}.
func (k FieldKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "FieldKind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsLineItem reports whether the kind repeats once per listing.
func (k FieldKind) IsLineItem() bool {
	return k >= KindPrice && k <= KindImageURL
}

// HeaderKinds returns the kinds emitted once per prospect.
func HeaderKinds() []FieldKind {
	return []FieldKind{KindCount, KindAgentName}
}

// LineItemKinds returns the per-listing kinds in projection order.
func LineItemKinds() []FieldKind {
	return []FieldKind{KindPrice, KindBedrooms, KindBathrooms, KindSqft, KindAddress, KindListingURL, KindImageURL}
}

// Errors returned by ParseFormat and Format.Name.
var (
	ErrInvalidFieldFormat = errors.New("invalid field name format")
	ErrInvalidIndex       = errors.New("invalid line item index")
)

// Placeholder names. {d} and {lineItemNumber} are older spellings of {index}
// still found in existing configuration files.
const (
	placeholderField = "field"
	placeholderIndex = "index"
)

var placeholderAliases = map[string]string{
	"field":          placeholderField,
	"index":          placeholderIndex,
	"d":              placeholderIndex,
	"lineItemNumber": placeholderIndex,
}

// placeholderRegex matches {name}. Group 1 is the name.
var placeholderRegex = regexp.MustCompile(`\{([^{}]*)\}`)

type segment struct {
	literal     string
	placeholder string
}

// Format is a parsed field name template. It is immutable and safe for
// concurrent use.
type Format struct {
	template string
	segments []segment
}

// ParseFormat parses a field name template. Both {field} and {index} (or an
// alias of it) must appear. Unknown placeholders and unbalanced braces are
// rejected.
func ParseFormat(template string) (*Format, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("%w: empty template", ErrInvalidFieldFormat)
	}

	f := &Format{template: template}
	seen := make(map[string]bool, 2)
	last := 0
	for _, loc := range placeholderRegex.FindAllStringSubmatchIndex(template, -1) {
		if lit := template[last:loc[0]]; lit != "" {
			if strings.ContainsAny(lit, "{}") {
				return nil, fmt.Errorf("%w: unbalanced brace in %q", ErrInvalidFieldFormat, template)
			}
			f.segments = append(f.segments, segment{literal: lit})
		}
		raw := template[loc[2]:loc[3]]
		name, ok := placeholderAliases[raw]
		if !ok {
			return nil, fmt.Errorf("%w: unknown placeholder {%s} in %q", ErrInvalidFieldFormat, raw, template)
		}
		seen[name] = true
		f.segments = append(f.segments, segment{placeholder: name})
		last = loc[1]
	}
	if tail := template[last:]; tail != "" {
		if strings.ContainsAny(tail, "{}") {
			return nil, fmt.Errorf("%w: unbalanced brace in %q", ErrInvalidFieldFormat, template)
		}
		f.segments = append(f.segments, segment{literal: tail})
	}

	for _, required := range []string{placeholderField, placeholderIndex} {
		if !seen[required] {
			return nil, fmt.Errorf("%w: %q has no {%s} placeholder", ErrInvalidFieldFormat, template, required)
		}
	}
	return f, nil
}

// MustParseFormat is like ParseFormat but panics on error. Intended for
// package-level defaults and tests.
func MustParseFormat(template string) *Format {
	f, err := ParseFormat(template)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the field name for kind. Header kinds take index 0, which
// renders {index} blank. Line-item kinds take a 1-based index.
func (f *Format) Name(kind FieldKind, index int) (string, error) {
	if kind < 0 || int(kind) >= len(kindNames) {
		return "", fmt.Errorf("unknown field kind %d", int(kind))
	}
	switch {
	case kind.IsLineItem() && index < 1:
		return "", fmt.Errorf("%w: %s needs an index >= 1, got %d", ErrInvalidIndex, kind, index)
	case !kind.IsLineItem() && index != 0:
		return "", fmt.Errorf("%w: %s takes no index, got %d", ErrInvalidIndex, kind, index)
	}

	idx := ""
	if index > 0 {
		idx = strconv.Itoa(index)
	}
	var b strings.Builder
	for _, s := range f.segments {
		switch s.placeholder {
		case placeholderField:
			b.WriteString(kind.String())
		case placeholderIndex:
			b.WriteString(idx)
		default:
			b.WriteString(s.literal)
		}
	}
	return b.String(), nil
}

// String returns the template the format was parsed from.
func (f *Format) String() string {
	return f.template
}
