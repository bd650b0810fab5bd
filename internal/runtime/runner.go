// Package runtime runs the prospectsync workflows: custom field creation and
// deletion, and the three weekly email sends.
//
// Every workflow is strictly sequential and stops at the first failure. The
// failure is bound to its call site with errhandling.Fail so the CLI can report
// the matching exit code. Nothing is retried and nothing already sent is
// rolled back.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/pardot"
	"github.com/pardreamin/prospectsync/internal/persistence"
	"github.com/pardreamin/prospectsync/internal/render"
	"github.com/pardreamin/prospectsync/internal/source"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Workflow commands, as reported in logs, metrics and run results.
const (
	CommandCreateFields = "fields create"
	CommandDeleteFields = "fields delete"
	CommandSendHTML     = "send html"
	CommandSendTemplate = "send template"
	CommandSendList     = "send list"
)

// Run status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PardotAPI is the part of the Pardot client the workflows use.
type PardotAPI interface {
	UpdateProspect(ctx context.Context, prospectID string, fields *prospect.FieldMap) error
	Submit(ctx context.Context, b prospect.Batch) error
	SendOneToOne(ctx context.Context, prospectID string, content pardot.EmailContent) error
	SendToList(ctx context.Context, listID string, content pardot.TemplateEmail) error
	CreateCustomField(ctx context.Context, label, apiName string) (string, error)
	DeleteCustomField(ctx context.Context, id string) error
	Previews() []prospect.RequestPreview
}

// Sampler picks the listings shown to one recipient.
type Sampler interface {
	SampleFor(r prospect.Recipient) []prospect.Listing
}

// Metrics receives the run counters.
type Metrics interface {
	ProspectsUpdated(n int)
	ProspectsCleared(n int)
	BatchSubmitted(n int)
	EmailSent()
	FieldCreated()
	FieldDeleted()
	RunFinished(command, status string, d time.Duration, at time.Time)
}

type noopMetrics struct{}

func (noopMetrics) ProspectsUpdated(int)                                 {}
func (noopMetrics) ProspectsCleared(int)                                 {}
func (noopMetrics) BatchSubmitted(int)                                   {}
func (noopMetrics) EmailSent()                                           {}
func (noopMetrics) FieldCreated()                                        {}
func (noopMetrics) FieldDeleted()                                        {}
func (noopMetrics) RunFinished(string, string, time.Duration, time.Time) {}

// Runner executes workflows against one Pardot business unit.
type Runner struct {
	settings   *config.Settings
	api        PardotAPI
	recipients source.RecipientSource
	sampler    Sampler
	filter     *source.Filter
	registry   *persistence.FieldRegistry
	html       *render.Renderer
	text       *render.Evaluator
	metrics    Metrics
	dryRun     bool
	newRunID   func() string
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecipients sets the recipient source and the listing sampler.
func WithRecipients(src source.RecipientSource, sampler Sampler) Option {
	return func(r *Runner) {
		r.recipients = src
		r.sampler = sampler
	}
}

// WithFilter narrows the recipients of every send.
func WithFilter(f *source.Filter) Option {
	return func(r *Runner) { r.filter = f }
}

// WithRegistry sets the custom field registry.
func WithRegistry(reg *persistence.FieldRegistry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithHTMLRenderer sets the renderer for complete-HTML emails.
func WithHTMLRenderer(h *render.Renderer) Option {
	return func(r *Runner) { r.html = h }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithDryRun marks the run as a dry run. The registry is read but never
// written.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunID replaces the random run id generator.
func WithRunID(newID func() string) Option {
	return func(r *Runner) { r.newRunID = newID }
}

// New creates a Runner.
func New(settings *config.Settings, api PardotAPI, opts ...Option) *Runner {
	r := &Runner{
		settings: settings,
		api:      api,
		text:     render.NewEvaluator(),
		metrics:  noopMetrics{},
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the state of one workflow execution.
type run struct {
	ctx        logger.RunContext
	result     *prospect.RunResult
	recipient  prospect.Recipient
	batchIndex int
}

func (st *run) step(name string) {
	st.ctx.Step = name
}

// execute wraps a workflow body with logging, metrics and the run result.
// The returned error, when not nil, is an *errhandling.RunError.
func (r *Runner) execute(ctx context.Context, command string, body func(context.Context, *run) error) (*prospect.RunResult, error) {
	startedAt := r.now()
	st := &run{
		ctx: logger.RunContext{
			RunID:   r.newRunID(),
			Command: command,
			DryRun:  r.dryRun,
		},
		result: &prospect.RunResult{
			Command:   command,
			StartedAt: startedAt,
		},
		batchIndex: -1,
	}
	st.result.RunID = st.ctx.RunID

	logger.LogRunStart(st.ctx)

	err := r.requireBasics()
	if err == nil {
		err = body(ctx, st)
	}

	completedAt := r.now()
	duration := completedAt.Sub(startedAt)
	st.result.CompletedAt = completedAt
	if r.dryRun && r.api != nil {
		st.result.DryRunPreview = r.api.Previews()
	}

	status := StatusSuccess
	if err != nil {
		status = StatusError
		err = errhandling.Fail(errhandling.SiteUnknown, err)
		st.result.Error = &prospect.RunError{
			Kind:     string(errhandling.KindOf(err)),
			Site:     string(errhandling.SiteOf(err)),
			Message:  err.Error(),
			ExitCode: errhandling.ExitCodeFor(err),
		}
		r.logFailure(st, err, duration)
	}
	st.result.Status = status

	st.ctx.Step = ""
	logger.LogRunEnd(st.ctx, status, logger.RunSummary{
		Recipients:       st.result.RecipientsProcessed,
		ProspectsUpdated: st.result.ProspectsUpdated,
		BatchesSubmitted: st.result.BatchesSubmitted,
		EmailsSent:       st.result.EmailsSent,
		FieldsCreated:    st.result.FieldsCreated,
		FieldsDeleted:    st.result.FieldsDeleted,
		Duration:         duration,
	})
	r.metrics.RunFinished(command, status, duration, completedAt)

	return st.result, err
}

func (r *Runner) requireBasics() error {
	switch {
	case r.settings == nil:
		return errhandling.Fail(errhandling.SiteConfigValidate, errors.New("runner has no settings"))
	case r.api == nil:
		return errhandling.Fail(errhandling.SiteConfigValidate, errors.New("runner has no Pardot client"))
	}
	return nil
}

// logFailure logs err with whatever context the run has collected.
func (r *Runner) logFailure(st *run, err error, d time.Duration) {
	errCtx := logger.ErrorContext{
		RunID:       st.ctx.RunID,
		Command:     st.ctx.Command,
		Step:        st.ctx.Step,
		Site:        string(errhandling.SiteOf(err)),
		Kind:        string(errhandling.KindOf(err)),
		Err:         err,
		RecipientID: st.recipient.ID,
		ProspectID:  st.recipient.ProspectID,
		BatchIndex:  st.batchIndex,
		Duration:    d,
	}
	extra := map[string]interface{}{}
	if c := errhandling.ClassifyError(err); c.Category != errhandling.CategoryUnknown {
		extra["error_category"] = string(c.Category)
	}
	var apiErr *pardot.APIError
	if errors.As(err, &apiErr) {
		errCtx.Endpoint = apiErr.Endpoint
		errCtx.HTTPStatus = apiErr.StatusCode
		if apiErr.Message != "" {
			extra["api_error"] = apiErr.Message
		}
	}
	if len(extra) > 0 {
		errCtx.Extra = extra
	}
	logger.LogError("run failed", errCtx)
}

// loadRecipients reads and filters the recipients of a send.
func (r *Runner) loadRecipients(ctx context.Context, st *run) ([]prospect.Recipient, error) {
	st.step("load")
	if r.recipients == nil || r.sampler == nil {
		return nil, errhandling.Fail(errhandling.SiteConfigValidate, errors.New("no recipient source configured"))
	}
	all, err := r.recipients.Recipients(ctx)
	if err != nil {
		return nil, errhandling.Fail(errhandling.SiteLoadRecords, err)
	}
	selected, err := r.filter.Apply(all)
	if err != nil {
		return nil, err
	}
	logger.LogStep(st.ctx, "recipients loaded",
		"loaded", len(all),
		"selected", len(selected),
		"filter", r.filter.String(),
	)
	return selected, nil
}

func requireSetting(name, value string) error {
	if value == "" {
		return errhandling.Fail(errhandling.SiteConfigValidate, fmt.Errorf("%s is required for this command", name))
	}
	return nil
}
