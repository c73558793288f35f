package flightsql

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Table holds a fully materialized query result: the stream schema plus
// every record batch, in arrival order. Call Release when done with it.
type Table struct {
	schema  *arrow.Schema
	records []arrow.Record
}

// Schema returns the result schema. Valid even for results with no rows.
func (t *Table) Schema() *arrow.Schema {
	return t.schema
}

// Records returns the decoded record batches in arrival order. The table
// retains ownership; do not release them individually.
func (t *Table) Records() []arrow.Record {
	return t.records
}

// NumRows returns the total row count across all batches.
func (t *Table) NumRows() int64 {
	var n int64
	for _, rec := range t.records {
		n += rec.NumRows()
	}
	return n
}

// NumCols returns the column count from the schema.
func (t *Table) NumCols() int {
	return t.schema.NumFields()
}

// Release frees every batch in the table. Safe to call more than once.
func (t *Table) Release() {
	releaseAll(t.records)
	t.records = nil
}

func releaseAll(recs []arrow.Record) {
	for _, rec := range recs {
		rec.Release()
	}
}
