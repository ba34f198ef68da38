package ingest

import (
	"testing"

	"geoingest/internal/transformer"
)

func TestBatcher_BatchBoundaries(t *testing.T) {
	t.Parallel()

	const size = 500
	tests := []struct {
		docs        int
		wantBatches int
		wantLast    int
	}{
		{docs: 0, wantBatches: 0},
		{docs: 1, wantBatches: 1, wantLast: 1},
		{docs: 499, wantBatches: 1, wantLast: 499},
		{docs: 500, wantBatches: 1, wantLast: 500},
		{docs: 501, wantBatches: 2, wantLast: 1},
		{docs: 1000, wantBatches: 2, wantLast: 500},
		{docs: 1234, wantBatches: 3, wantLast: 234},
	}
	for _, tt := range tests {
		b := NewBatcher(size)
		var batches [][]transformer.Document
		for i := 0; i < tt.docs; i++ {
			if out := b.Add(transformer.Document{"i": i}); out != nil {
				batches = append(batches, out)
			}
		}
		if out := b.Flush(); out != nil {
			batches = append(batches, out)
		}

		if len(batches) != tt.wantBatches {
			t.Fatalf("docs=%d: batches=%d want %d", tt.docs, len(batches), tt.wantBatches)
		}
		seen := 0
		for i, batch := range batches {
			if len(batch) == 0 || len(batch) > size {
				t.Fatalf("docs=%d: batch %d has %d docs", tt.docs, i, len(batch))
			}
			if i < len(batches)-1 && len(batch) != size {
				t.Fatalf("docs=%d: non-final batch %d has %d docs", tt.docs, i, len(batch))
			}
			for _, d := range batch {
				if d["i"] != seen {
					t.Fatalf("docs=%d: order broken at %d: got %v", tt.docs, seen, d["i"])
				}
				seen++
			}
		}
		if seen != tt.docs {
			t.Fatalf("docs=%d: emitted %d", tt.docs, seen)
		}
		if tt.wantBatches > 0 && len(batches[len(batches)-1]) != tt.wantLast {
			t.Fatalf("docs=%d: last batch=%d want %d", tt.docs, len(batches[len(batches)-1]), tt.wantLast)
		}
	}
}

func TestBatcher_FlushIsTerminal(t *testing.T) {
	t.Parallel()

	b := NewBatcher(3)
	b.Add(transformer.Document{"a": 1})
	if got := b.Len(); got != 1 {
		t.Fatalf("Len=%d want 1", got)
	}
	if out := b.Flush(); len(out) != 1 {
		t.Fatalf("first Flush=%v", out)
	}
	if out := b.Flush(); out != nil {
		t.Fatalf("second Flush=%v want nil", out)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on Add after Flush")
		}
	}()
	b.Add(transformer.Document{"b": 2})
}

func TestNewBatcher_DefaultSize(t *testing.T) {
	t.Parallel()

	b := NewBatcher(0)
	for i := 0; i < DefaultBatchSize-1; i++ {
		if out := b.Add(transformer.Document{}); out != nil {
			t.Fatalf("early batch at %d", i)
		}
	}
	if out := b.Add(transformer.Document{}); len(out) != DefaultBatchSize {
		t.Fatalf("batch=%d want %d", len(out), DefaultBatchSize)
	}
}
