// Package transformer turns raw CSV rows into normalized documents.
// This file defines a pooled Row type passed from the CSV parser to the
// file ingestor to keep per-row allocations out of the hot path.
package transformer

import "sync"

// RawRow maps a column name to its raw string value for one input line.
type RawRow map[string]string

// Row is a pooled container holding one parsed input line.
//
// Ownership contract:
//   - Exactly one goroutine "owns" a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer must call Free() AFTER it is fully done with the Row
//     (and anything referencing r.Fields).
//
// Use Free() only on the normal path. On cancellation paths use Drop(): a
// canceled parser can still be unwinding while the consumer drains, and a
// re-pooled Row could be reused while it is still being read.
type Row struct {
	Fields RawRow
	Line   int // 1-based logical record number
}

var rowPool sync.Pool

// GetRow returns a pooled Row with an empty Fields map sized for colCount.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if r.Fields == nil {
			r.Fields = make(RawRow, colCount)
		} else {
			clear(r.Fields)
		}
		r.Line = 0
		return r
	}
	return &Row{Fields: make(RawRow, colCount)}
}

// Free returns the Row to the pool.
// Call this ONLY when you're sure no other goroutine can observe r or r.Fields.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row WITHOUT returning it to the pool.
func (r *Row) Drop() {
	r.Fields = nil
	r.Line = 0
}
