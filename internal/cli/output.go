// Package cli provides CLI output formatting and display functions.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	DryRun  bool
}

// maxLinesCompact bounds form values printed without --verbose.
const maxLinesCompact = 10

// PrintRunResult displays the outcome of a workflow run. Failures go to errw,
// everything else to w.
func PrintRunResult(w, errw io.Writer, result *prospect.RunResult, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(errw, "✗ No run result available")
		return
	}

	if result.Error != nil {
		fmt.Fprintf(errw, "✗ %s failed\n", result.Command)
		fmt.Fprintf(errw, "  Site: %s\n", result.Error.Site)
		fmt.Fprintf(errw, "  Kind: %s\n", result.Error.Kind)
		fmt.Fprintf(errw, "  Error: %s\n", result.Error.Message)
		fmt.Fprintf(errw, "  Exit code: %d\n", result.Error.ExitCode)
		if opts.Verbose {
			fmt.Fprintf(errw, "  Run: %s\n", result.RunID)
		}
		return
	}

	if opts.Quiet {
		return
	}
	fmt.Fprintf(w, "✓ %s completed\n", result.Command)
	printCounter(w, "Recipients processed", result.RecipientsProcessed)
	printCounter(w, "Prospects updated", result.ProspectsUpdated)
	printCounter(w, "Prospects cleared", result.ProspectsCleared)
	printCounter(w, "Batches submitted", result.BatchesSubmitted)
	printCounter(w, "Emails sent", result.EmailsSent)
	printCounter(w, "Fields created", result.FieldsCreated)
	printCounter(w, "Fields deleted", result.FieldsDeleted)
	if opts.Verbose {
		if len(result.BatchSizes) > 0 {
			fmt.Fprintf(w, "  Batch sizes: %v\n", result.BatchSizes)
		}
		fmt.Fprintf(w, "  %s\n", logger.FormatSummaryHuman(logger.RunSummary{
			Recipients:       result.RecipientsProcessed,
			ProspectsUpdated: result.ProspectsUpdated,
			BatchesSubmitted: result.BatchesSubmitted,
			EmailsSent:       result.EmailsSent,
			FieldsCreated:    result.FieldsCreated,
			FieldsDeleted:    result.FieldsDeleted,
			Duration:         result.CompletedAt.Sub(result.StartedAt),
		}))
		fmt.Fprintf(w, "  Run: %s\n", result.RunID)
	}

	if opts.DryRun {
		PrintDryRunPreview(w, result.DryRunPreview, opts.Verbose)
	}
}

func printCounter(w io.Writer, label string, n int) {
	if n > 0 {
		fmt.Fprintf(w, "  %s: %d\n", label, n)
	}
}

// PrintDryRunPreview displays the requests a dry run would have sent.
func PrintDryRunPreview(w io.Writer, previews []prospect.RequestPreview, verbose bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📋 Dry-Run Preview (what would have been sent):")
	fmt.Fprintln(w)

	for i, preview := range previews {
		if len(previews) > 1 {
			fmt.Fprintf(w, "─── Request %d of %d: %s ───\n", i+1, len(previews), preview.Operation)
		}

		fmt.Fprintf(w, "  Endpoint: %s %s\n", preview.Method, preview.Endpoint)
		if preview.RecordCount > 0 {
			fmt.Fprintf(w, "  Records: %d\n", preview.RecordCount)
		}
		if verbose && len(preview.Headers) > 0 {
			printHeaders(w, preview.Headers)
		}
		if len(preview.Form) > 0 {
			printForm(w, preview.Form, verbose)
		}

		if i < len(previews)-1 {
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "ℹ️  Nothing was sent to Pardot (dry-run mode)")
}

// printHeaders prints sorted headers.
func printHeaders(w io.Writer, headers map[string]string) {
	fmt.Fprintln(w, "  Headers:")
	for _, name := range sortedKeys(headers) {
		fmt.Fprintf(w, "    %s: %s\n", name, headers[name])
	}
}

// printForm prints the form fields. JSON documents are indented and long
// values truncated unless verbose.
func printForm(w io.Writer, form map[string][]string, verbose bool) {
	fmt.Fprintln(w, "  Form:")
	for _, name := range sortedKeys(form) {
		for _, value := range form[name] {
			if !strings.Contains(value, "\n") && !isJSONDocument(value) {
				if len(value) > 80 && !verbose {
					value = value[:77] + "..."
				}
				fmt.Fprintf(w, "    %s: %s\n", name, value)
				continue
			}
			fmt.Fprintf(w, "    %s:\n", name)
			printValue(w, indentJSON(value), verbose)
		}
	}
}

func printValue(w io.Writer, body string, verbose bool) {
	if verbose || countLines(body) <= maxLinesCompact {
		printIndentedBody(w, body, "      ")
		return
	}
	printTruncatedBody(w, body, "      ", maxLinesCompact)
}

func isJSONDocument(value string) bool {
	trimmed := strings.TrimSpace(value)
	return (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed))
}

func indentJSON(value string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(value), "", "  "); err != nil {
		return value
	}
	return buf.String()
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// printIndentedBody prints the body with indentation.
func printIndentedBody(w io.Writer, body string, indent string) {
	for _, line := range splitLines(body) {
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
}

// printTruncatedBody prints the first N lines of the body.
func printTruncatedBody(w io.Writer, body string, indent string, maxLines int) {
	lines := splitLines(body)
	for i := 0; i < maxLines && i < len(lines); i++ {
		fmt.Fprintf(w, "%s%s\n", indent, lines[i])
	}
	if len(lines) > maxLines {
		fmt.Fprintf(w, "%s... (%d more lines, use --verbose for all)\n", indent, len(lines)-maxLines)
	}
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	return strings.Count(s, "\n") + 1
}

// splitLines splits a string into lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// PrintConfigSummary prints what a validated configuration will do.
func PrintConfigSummary(w io.Writer, s SettingsSummary) {
	fmt.Fprintf(w, "  Pardot: %s (API v%d, batches of %d)\n", s.PardotURL, s.APIVersion, s.MaxBatchSize)
	fmt.Fprintf(w, "  Field names: %s (%s)\n", s.APIFormat, s.HumanFormat)
	fmt.Fprintf(w, "  Listings per recipient: %d to %d\n", s.ListingCountMin, s.ListingCountMax)
	fmt.Fprintf(w, "  Records: %s\n", s.Source)
	if s.EnvOverrides > 0 {
		fmt.Fprintf(w, "  Environment overrides: %d\n", s.EnvOverrides)
	}
	if s.Filter != "" {
		fmt.Fprintf(w, "  Recipient filter: %s\n", s.Filter)
	}
}

// SettingsSummary is the part of the configuration PrintConfigSummary shows.
type SettingsSummary struct {
	PardotURL       string
	APIVersion      int
	MaxBatchSize    int
	APIFormat       string
	HumanFormat     string
	ListingCountMin int
	ListingCountMax int
	Source          string
	Filter          string
	EnvOverrides    int
}
