package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/olekukonko/tablewriter"
)

// renderResult draws records as an aligned text table and returns the
// number of rows rendered. maxRows of 0 renders everything; withHeader
// lets streamed batches print the header only once.
func renderResult(w io.Writer, schema *arrow.Schema, recs []arrow.Record, maxRows int, withHeader bool) int {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetRowLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	if withHeader {
		headers := make([]string, schema.NumFields())
		for i, f := range schema.Fields() {
			headers[i] = f.Name
		}
		table.SetHeader(headers)
	}

	rendered := 0
	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			if maxRows > 0 && rendered >= maxRows {
				table.Render()
				return rendered
			}
			table.Append(renderRow(rec, row))
			rendered++
		}
	}
	table.Render()
	return rendered
}

func renderRow(rec arrow.Record, row int) []string {
	cells := make([]string, rec.NumCols())
	for i := range cells {
		cells[i] = formatValue(rec.Column(i), row)
	}
	return cells
}

// renderCSV writes records as RFC 4180 rows and returns the number of rows
// written. NULL cells become empty fields so the output stays loadable.
func renderCSV(w io.Writer, schema *arrow.Schema, recs []arrow.Record, maxRows int, withHeader bool) (int, error) {
	cw := csv.NewWriter(w)
	if withHeader {
		headers := make([]string, schema.NumFields())
		for i, f := range schema.Fields() {
			headers[i] = f.Name
		}
		if err := cw.Write(headers); err != nil {
			return 0, err
		}
	}

	written := 0
	for _, rec := range recs {
		for row := 0; row < int(rec.NumRows()); row++ {
			if maxRows > 0 && written >= maxRows {
				cw.Flush()
				return written, cw.Error()
			}
			if err := cw.Write(csvRow(rec, row)); err != nil {
				return written, err
			}
			written++
		}
	}
	cw.Flush()
	return written, cw.Error()
}

func csvRow(rec arrow.Record, row int) []string {
	cells := make([]string, rec.NumCols())
	for i := range cells {
		col := rec.Column(i)
		if col.IsNull(row) {
			continue
		}
		cells[i] = formatValue(col, row)
	}
	return cells
}

func formatValue(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return "NULL"
	}
	switch c := col.(type) {
	case *array.Boolean:
		return strconv.FormatBool(c.Value(row))
	case *array.Int8:
		return strconv.FormatInt(int64(c.Value(row)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(c.Value(row)), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(c.Value(row)), 10)
	case *array.Int64:
		return strconv.FormatInt(c.Value(row), 10)
	case *array.Uint8:
		return strconv.FormatUint(uint64(c.Value(row)), 10)
	case *array.Uint16:
		return strconv.FormatUint(uint64(c.Value(row)), 10)
	case *array.Uint32:
		return strconv.FormatUint(uint64(c.Value(row)), 10)
	case *array.Uint64:
		return strconv.FormatUint(c.Value(row), 10)
	case *array.Float64:
		return strconv.FormatFloat(c.Value(row), 'g', -1, 64)
	case *array.String:
		return c.Value(row)
	case *array.LargeString:
		return c.Value(row)
	case *array.Binary:
		return fmt.Sprintf("0x%x", c.Value(row))
	case *array.LargeBinary:
		return fmt.Sprintf("0x%x", c.Value(row))
	case *array.Timestamp:
		dt := c.DataType().(*arrow.TimestampType)
		return c.Value(row).ToTime(dt.Unit).Format(time.RFC3339Nano)
	default:
		// Lists, structs and anything else use the array's own textual form.
		return col.ValueStr(row)
	}
}
