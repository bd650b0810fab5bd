package batch

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// recorder is a Submitter that records batch sizes and can fail on a given call.
type recorder struct {
	sizes  []int
	failAt int // 1-based call number to fail on, 0 never
	calls  int
}

func (r *recorder) Submit(_ context.Context, b prospect.Batch) error {
	r.calls++
	if r.failAt == r.calls {
		return errors.New("remote rejected batch")
	}
	r.sizes = append(r.sizes, len(b))
	return nil
}

func record(id int) *prospect.FieldMap {
	m := prospect.NewFieldMap(2)
	m.Set("PD_Count", 1)
	m.SetID(strconv.Itoa(id))
	return m
}

func run(t *testing.T, b *Batcher, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		if err := b.Add(ctx, record(i)); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	if err := b.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
}

func TestBatcher_Sizes(t *testing.T) {
	tests := []struct {
		name string
		max  int
		n    int
		want []int
	}{
		{"five by two", 2, 5, []int{2, 2, 1}},
		{"exact multiple", 2, 4, []int{2, 2}},
		{"max one", 1, 3, []int{1, 1, 1}},
		{"zero records", 2, 0, []int{}},
		{"fewer than max", 50, 3, []int{3}},
		{"zero max flushes at finalize", 0, 3, []int{3}},
		{"negative max flushes at finalize", -1, 2, []int{2}},
		{"zero max zero records", 0, 0, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			b := New(tt.max, r)
			run(t, b, tt.n)

			if diff := cmp.Diff(tt.want, b.Sizes()); diff != "" {
				t.Errorf("Sizes() mismatch (-want +got):\n%s", diff)
			}
			if len(r.sizes) != len(tt.want) {
				t.Errorf("submitter called %d times, want %d", len(r.sizes), len(tt.want))
			}
		})
	}
}

func TestBatcher_CeilProperty(t *testing.T) {
	for m := 1; m <= 6; m++ {
		for n := 0; n <= 20; n++ {
			b := New(m, &recorder{})
			run(t, b, n)

			sizes := b.Sizes()
			wantCount := (n + m - 1) / m
			if len(sizes) != wantCount {
				t.Fatalf("m=%d n=%d: %d batches, want %d", m, n, len(sizes), wantCount)
			}
			total := 0
			for i, s := range sizes {
				total += s
				if i < len(sizes)-1 && s != m {
					t.Errorf("m=%d n=%d: batch %d has %d records, want %d", m, n, i, s, m)
				}
			}
			if total != n {
				t.Errorf("m=%d n=%d: total %d records", m, n, total)
			}
		}
	}
}

func TestBatcher_PreservesOrder(t *testing.T) {
	b := New(2, &recorder{})
	run(t, b, 5)

	var ids []string
	for _, batch := range b.Batches() {
		for _, m := range batch {
			ids = append(ids, m.ID())
		}
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4", "5"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBatcher_SubmitFailureAborts(t *testing.T) {
	r := &recorder{failAt: 2}
	b := New(2, r)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := b.Add(ctx, record(i)); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	err := b.Add(ctx, record(4))
	if err == nil {
		t.Fatal("expected submission failure")
	}

	if diff := cmp.Diff([]int{2}, b.Sizes()); diff != "" {
		t.Errorf("failed batch should not be recorded (-want +got):\n%s", diff)
	}
	if err := b.Add(ctx, record(5)); !errors.Is(err, ErrAborted) {
		t.Errorf("Add after failure error = %v, want ErrAborted", err)
	}
	if err := b.Finalize(ctx); !errors.Is(err, ErrAborted) {
		t.Errorf("Finalize after failure error = %v, want ErrAborted", err)
	}
}

func TestBatcher_FinalizeTwice(t *testing.T) {
	b := New(3, &recorder{})
	run(t, b, 1)
	if err := b.Finalize(context.Background()); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize error = %v, want ErrFinalized", err)
	}
	if err := b.Add(context.Background(), record(9)); !errors.Is(err, ErrFinalized) {
		t.Errorf("Add after Finalize error = %v, want ErrFinalized", err)
	}
}

func TestSubmitterFunc(t *testing.T) {
	called := 0
	b := New(1, SubmitterFunc(func(_ context.Context, batch prospect.Batch) error {
		called += len(batch)
		return nil
	}))
	run(t, b, 2)
	if called != 2 {
		t.Errorf("SubmitterFunc saw %d records, want 2", called)
	}
	if b.Max() != 1 {
		t.Errorf("Max() = %d", b.Max())
	}
}
