package flightsql

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Accessors(t *testing.T) {
	r1 := int64Record(t, "v", 1, 2, 3)
	r2 := int64Record(t, "v", 4)
	r1.Retain()
	r2.Retain()

	tbl := &Table{schema: r1.Schema(), records: []arrow.Record{r1, r2}}
	assert.Equal(t, int64(4), tbl.NumRows())
	assert.Equal(t, 1, tbl.NumCols())
	require.Len(t, tbl.Records(), 2)
	assert.Same(t, r1.Schema(), tbl.Schema())

	tbl.Release()
	assert.Empty(t, tbl.Records())
	tbl.Release() // second release is a no-op
}

func TestTable_Empty(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}, nil)
	tbl := &Table{schema: schema}
	assert.Equal(t, int64(0), tbl.NumRows())
	assert.Equal(t, 1, tbl.NumCols())
	assert.Empty(t, tbl.Records())
	tbl.Release()
}
