// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the
// prospectsync workflows.
//
// Run context helpers attach the run id, command and step to every entry so a
// failed send can be traced back to the recipient and batch that caused it.
// All helpers use structured logging with consistent field names (snake_case).
//
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

// console is where console output goes; swapped in tests.
var console io.Writer = os.Stdout

func init() {
	Logger = slog.New(newConsoleHandler(slog.LevelInfo, FormatJSON))
}

// SetOutput redirects console logging to w with the given level and format.
func SetOutput(w io.Writer, level slog.Level, format OutputFormat) {
	console = w
	Logger = slog.New(newConsoleHandler(level, format))
}

func newConsoleHandler(level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(console, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(console),
		})
	}
	return slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level})
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// =============================================================================
// Run Context Types
// =============================================================================

// RunContext identifies a workflow run in log entries.
type RunContext struct {
	// RunID is the unique identifier for the run (required)
	RunID string
	// Command is the CLI workflow (e.g. "send list")
	Command string
	// Step is the current step (authenticate, project, batch_update, send, clear)
	Step string
	// DryRun indicates no request reaches Pardot
	DryRun bool
}

// RunSummary holds the counters reported when a run ends.
type RunSummary struct {
	Recipients       int
	ProspectsUpdated int
	BatchesSubmitted int
	EmailsSent       int
	FieldsCreated    int
	FieldsDeleted    int
	Duration         time.Duration
}

// ErrorContext contains structured context for error logging.
// Use this with LogError() for consistent, actionable error logs.
type ErrorContext struct {
	RunID   string
	Command string
	Step    string

	// Site is the failing call site (batch_update, send_list, ...)
	Site string
	// Kind is the failure kind (auth, remote_update, malformed_record)
	Kind         string
	ErrorMessage string
	Err          error

	RecipientID string
	ProspectID  string
	BatchIndex  int // -1 when not batching
	RecordCount int
	Endpoint    string
	HTTPStatus  int
	Duration    time.Duration

	// Additional context as key-value pairs
	Extra map[string]interface{}
}

// =============================================================================
// Run Context Helpers
// =============================================================================

// WithRun returns a logger with run context attached.
// Only non-empty fields are included in the log output.
func WithRun(ctx RunContext) *slog.Logger {
	return Logger.With(runAttrs(ctx)...)
}

// LogRunStart logs the start of a workflow run.
func LogRunStart(ctx RunContext) {
	Logger.Info("run started", runAttrs(ctx)...)
}

// LogRunEnd logs the completion of a workflow run with its counters.
func LogRunEnd(ctx RunContext, status string, s RunSummary) {
	attrs := runAttrs(ctx)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("recipients", s.Recipients),
		slog.Duration("duration", s.Duration),
	)
	if s.ProspectsUpdated > 0 {
		attrs = append(attrs, slog.Int("prospects_updated", s.ProspectsUpdated))
	}
	if s.BatchesSubmitted > 0 {
		attrs = append(attrs, slog.Int("batches_submitted", s.BatchesSubmitted))
	}
	if s.EmailsSent > 0 {
		attrs = append(attrs, slog.Int("emails_sent", s.EmailsSent))
	}
	if s.FieldsCreated > 0 {
		attrs = append(attrs, slog.Int("fields_created", s.FieldsCreated))
	}
	if s.FieldsDeleted > 0 {
		attrs = append(attrs, slog.Int("fields_deleted", s.FieldsDeleted))
	}
	Logger.Info("run completed", attrs...)
}

// LogStep logs progress within a run step.
func LogStep(ctx RunContext, msg string, args ...any) {
	attrs := runAttrs(ctx)
	attrs = append(attrs, args...)
	Logger.Info(msg, attrs...)
}

// LogError logs an error with full run context.
func LogError(message string, errCtx ErrorContext) {
	attrs := make([]any, 0, 20)

	if errCtx.RunID != "" {
		attrs = append(attrs, slog.String("run_id", errCtx.RunID))
	}
	if errCtx.Command != "" {
		attrs = append(attrs, slog.String("command", errCtx.Command))
	}
	if errCtx.Step != "" {
		attrs = append(attrs, slog.String("step", errCtx.Step))
	}
	if errCtx.Site != "" {
		attrs = append(attrs, slog.String("site", errCtx.Site))
	}
	if errCtx.Kind != "" {
		attrs = append(attrs, slog.String("error_kind", errCtx.Kind))
	}
	if errCtx.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", errCtx.ErrorMessage))
	}
	if errCtx.Err != nil {
		attrs = append(attrs, slog.String("error_type", fmt.Sprintf("%T", errCtx.Err)))

		errorChain := []string{errCtx.Err.Error()}
		for current := errors.Unwrap(errCtx.Err); current != nil; current = errors.Unwrap(current) {
			errorChain = append(errorChain, current.Error())
		}
		if len(errorChain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(errorChain, " -> ")))
		}
	}

	if errCtx.RecipientID != "" {
		attrs = append(attrs, slog.String("recipient_id", errCtx.RecipientID))
	}
	if errCtx.ProspectID != "" {
		attrs = append(attrs, slog.String("prospect_id", errCtx.ProspectID))
	}
	if errCtx.BatchIndex >= 0 {
		attrs = append(attrs, slog.Int("batch_index", errCtx.BatchIndex))
	}
	if errCtx.RecordCount > 0 {
		attrs = append(attrs, slog.Int("record_count", errCtx.RecordCount))
	}
	if errCtx.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", errCtx.Endpoint))
	}
	if errCtx.HTTPStatus > 0 {
		attrs = append(attrs, slog.Int("http_status", errCtx.HTTPStatus))
	}
	if errCtx.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", errCtx.Duration))
	}
	for k, v := range errCtx.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}

	Logger.Error(message, attrs...)
}

// runAttrs builds slog attributes from a RunContext, skipping empty fields.
func runAttrs(ctx RunContext) []any {
	attrs := make([]any, 0, 8)
	attrs = append(attrs, slog.String("run_id", ctx.RunID))
	if ctx.Command != "" {
		attrs = append(attrs, slog.String("command", ctx.Command))
	}
	if ctx.Step != "" {
		attrs = append(attrs, slog.String("step", ctx.Step))
	}
	if ctx.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	return attrs
}

// =============================================================================
// Human-Readable Log Format Support
// =============================================================================

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat maps a --log-format flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (want json or human)", s)
	}
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler that outputs human-readable log messages.
type HumanHandler struct {
	opts   HumanHandlerOptions
	writer io.Writer
	attrs  []slog.Attr
	groups []string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		writer: w,
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// maxInlineAttrs caps how many attributes a human log line shows.
const maxInlineAttrs = 6

// Handle outputs a log record in human-readable format.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(h.levelPrefix(r.Level, r.Message))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	// run_id is noise on a console; keep it for JSON only
	var keyAttrs []string
	collect := func(a slog.Attr) bool {
		if a.Key != "run_id" {
			keyAttrs = append(keyAttrs, formatAttr(a))
		}
		return true
	}
	r.Attrs(collect)
	for _, a := range h.attrs {
		collect(a)
	}

	if len(keyAttrs) > 0 {
		shown := keyAttrs
		if len(shown) > maxInlineAttrs {
			shown = shown[:maxInlineAttrs]
		}
		sb.WriteString(" ")
		sb.WriteString(strings.Join(shown, " "))
		if len(keyAttrs) > maxInlineAttrs {
			sb.WriteString(fmt.Sprintf(" (+%d more)", len(keyAttrs)-maxInlineAttrs))
		}
	}

	sb.WriteString("\n")
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &HumanHandler{opts: h.opts, writer: h.writer, attrs: merged, groups: h.groups}
}

// WithGroup returns a new handler with the given group name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string(nil), h.groups...), name)
	return &HumanHandler{opts: h.opts, writer: h.writer, attrs: h.attrs, groups: groups}
}

// levelPrefix returns the prefix for the level, using ✓ for success messages.
func (h *HumanHandler) levelPrefix(level slog.Level, message string) string {
	lower := strings.ToLower(message)
	isSuccess := strings.Contains(lower, "completed") ||
		strings.Contains(lower, "success") ||
		strings.Contains(lower, "sent") ||
		strings.Contains(lower, "created") ||
		strings.Contains(lower, "deleted")

	const (
		colorReset  = "\033[0m"
		colorRed    = "\033[31m"
		colorYellow = "\033[33m"
		colorGreen  = "\033[32m"
		colorCyan   = "\033[36m"
	)

	var prefix, color string
	switch {
	case level >= slog.LevelError:
		prefix, color = "✗", colorRed
	case level >= slog.LevelWarn:
		prefix, color = "⚠", colorYellow
	case level >= slog.LevelInfo && isSuccess:
		prefix, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		prefix, color = "ℹ", colorCyan
	default:
		prefix, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + prefix + colorReset
	}
	return prefix
}

// formatAttr formats a single attribute for display.
func formatAttr(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return fmt.Sprintf("%s=%s", a.Key, FormatDuration(v))
	case float64:
		return fmt.Sprintf("%s=%.2f", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// FormatSummaryHuman formats run counters in a human-readable way.
func FormatSummaryHuman(s RunSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Processed %d recipients in %s", s.Recipients, FormatDuration(s.Duration)))
	if s.ProspectsUpdated > 0 {
		sb.WriteString(fmt.Sprintf(", %d prospect updates", s.ProspectsUpdated))
	}
	if s.BatchesSubmitted > 0 {
		sb.WriteString(fmt.Sprintf(", %d batches", s.BatchesSubmitted))
	}
	if s.EmailsSent > 0 {
		sb.WriteString(fmt.Sprintf(", %d sends", s.EmailsSent))
	}
	if s.FieldsCreated > 0 {
		sb.WriteString(fmt.Sprintf(", %d fields created", s.FieldsCreated))
	}
	if s.FieldsDeleted > 0 {
		sb.WriteString(fmt.Sprintf(", %d fields deleted", s.FieldsDeleted))
	}
	return sb.String()
}

// =============================================================================
// Log File Output Support
// =============================================================================

// logFile holds the currently open log file (if any)
var logFile *os.File

// maxLogFileSize is the size at which the log file is rotated (10MB)
const maxLogFileSize = 10 * 1024 * 1024

// rotateLogFile renames the log file with a timestamp suffix once it exceeds
// maxLogFileSize.
func rotateLogFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking log file size: %w", err)
	}

	if info.Size() >= maxLogFileSize {
		rotatedPath := fmt.Sprintf("%s.%s", path, time.Now().Format("20060102-150405"))
		if err := os.Rename(path, rotatedPath); err != nil {
			return fmt.Errorf("rotating log file: %w", err)
		}
	}
	return nil
}

// SetLogFile configures logging to write to both the console and the file.
// File logs are always JSON.
func SetLogFile(path string, level slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()

	if err := rotateLogFile(path); err != nil {
		Warn("log rotation failed", slog.String("error", err.Error()))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f

	Logger = slog.New(&dualHandler{
		console: newConsoleHandler(level, consoleFormat),
		file:    slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
	})

	Debug("log file opened", slog.String("path", path))
	return nil
}

// CloseLogFile closes the current log file if one is open.
func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Sync(); err != nil {
		Warn("failed to sync log file", slog.String("error", err.Error()))
	}
	if err := logFile.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
	logFile = nil
}

// dualHandler is a slog.Handler that writes to both console and file handlers.
type dualHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (d *dualHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.console.Enabled(ctx, level) || d.file.Enabled(ctx, level)
}

func (d *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	if d.console.Enabled(ctx, r.Level) {
		if err := d.console.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	if d.file.Enabled(ctx, r.Level) {
		if err := d.file.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (d *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{
		console: d.console.WithAttrs(attrs),
		file:    d.file.WithAttrs(attrs),
	}
}

func (d *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{
		console: d.console.WithGroup(name),
		file:    d.file.WithGroup(name),
	}
}
