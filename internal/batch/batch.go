// Package batch groups prospect field maps into bounded batches and hands each
// completed batch to a Submitter.
//
// A Batcher is single-use and not safe for concurrent use. Records are
// accepted in order; whenever the pending batch reaches the configured size it
// is submitted and recorded, and Finalize submits whatever is left. A
// submission failure stops the Batcher: the failed batch is not recorded and
// earlier batches are not rolled back.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// Submitter sends one batch to the remote system.
type Submitter interface {
	Submit(ctx context.Context, b prospect.Batch) error
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, b prospect.Batch) error

// Submit calls f(ctx, b).
func (f SubmitterFunc) Submit(ctx context.Context, b prospect.Batch) error {
	return f(ctx, b)
}

// ErrFinalized is returned by Add and Finalize once Finalize has run.
var ErrFinalized = errors.New("batcher already finalized")

// ErrAborted is returned by Add and Finalize after a submission failure.
var ErrAborted = errors.New("batcher aborted by an earlier submission failure")

// Batcher accumulates FieldMaps into batches of at most Max records.
type Batcher struct {
	max       int
	submitter Submitter

	pending   prospect.Batch
	completed []prospect.Batch
	finalized bool
	aborted   bool
}

// New creates a Batcher. A size below 1 never fills a batch, so every record
// goes out in the single batch submitted by Finalize.
func New(size int, submitter Submitter) *Batcher {
	return &Batcher{
		max:       size,
		submitter: submitter,
		pending:   make(prospect.Batch, 0, max(size, 0)),
	}
}

// Max returns the batch size bound.
func (b *Batcher) Max() int {
	return b.max
}

// Add appends m to the pending batch and submits the batch when it is full.
func (b *Batcher) Add(ctx context.Context, m *prospect.FieldMap) error {
	if err := b.usable(); err != nil {
		return err
	}
	b.pending = append(b.pending, m)
	if b.max < 1 || len(b.pending) < b.max {
		return nil
	}
	return b.flush(ctx, false)
}

// Finalize submits a non-empty pending batch. It is an error to call Add or
// Finalize afterwards.
func (b *Batcher) Finalize(ctx context.Context) error {
	if err := b.usable(); err != nil {
		return err
	}
	b.finalized = true
	if len(b.pending) == 0 {
		return nil
	}
	return b.flush(ctx, true)
}

// Batches returns the successfully submitted batches in submission order.
func (b *Batcher) Batches() []prospect.Batch {
	out := make([]prospect.Batch, len(b.completed))
	copy(out, b.completed)
	return out
}

// Sizes returns the size of each submitted batch.
func (b *Batcher) Sizes() []int {
	sizes := make([]int, len(b.completed))
	for i, batch := range b.completed {
		sizes[i] = len(batch)
	}
	return sizes
}

func (b *Batcher) usable() error {
	switch {
	case b.aborted:
		return ErrAborted
	case b.finalized:
		return ErrFinalized
	}
	return nil
}

func (b *Batcher) flush(ctx context.Context, final bool) error {
	batch := b.pending
	index := len(b.completed)

	msg := "submitting batch"
	if final {
		msg = "submitting final batch"
	}
	logger.Debug(msg, "batch_index", index, "record_count", len(batch))

	if err := b.submitter.Submit(ctx, batch); err != nil {
		b.aborted = true
		return fmt.Errorf("submitting batch %d (%d records): %w", index, len(batch), err)
	}
	b.completed = append(b.completed, batch)
	b.pending = make(prospect.Batch, 0, max(b.max, 0))
	return nil
}
