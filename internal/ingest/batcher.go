package ingest

import "geoingest/internal/transformer"

// Batcher accumulates documents into batches of at most size.
//
// States: accumulating until Flush, then terminal. One Batcher serves exactly
// one file and is not safe for concurrent use.
type Batcher struct {
	size    int
	docs    []transformer.Document
	flushed bool
}

// NewBatcher returns a Batcher emitting batches of size documents.
// A size <= 0 falls back to the default bulk size.
func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{size: size, docs: make([]transformer.Document, 0, size)}
}

// Add appends doc. When the batch reaches its capacity, Add returns it and
// starts a fresh one; otherwise it returns nil.
//
// Panics if called after Flush.
func (b *Batcher) Add(doc transformer.Document) []transformer.Document {
	if b.flushed {
		panic("ingest: Batcher.Add after Flush")
	}
	b.docs = append(b.docs, doc)
	if len(b.docs) < b.size {
		return nil
	}
	out := b.docs
	b.docs = make([]transformer.Document, 0, b.size)
	return out
}

// Flush returns the pending partial batch, or nil when nothing is pending.
// It moves the Batcher to its terminal state; a second Flush returns nil.
func (b *Batcher) Flush() []transformer.Document {
	if b.flushed {
		return nil
	}
	b.flushed = true
	out := b.docs
	b.docs = nil
	if len(out) == 0 {
		return nil
	}
	return out
}

// Len reports the number of pending documents.
func (b *Batcher) Len() int { return len(b.docs) }
