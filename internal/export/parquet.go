package export

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

// cell is one row of the long-format export. Value holds the text rendering
// of the cell and is absent for NULLs; Type keeps the variant tag so readers
// can restore typed values.
type cell struct {
	RowIndex    int64   `parquet:"row_index"`
	ColumnIndex int32   `parquet:"column_index"`
	Column      string  `parquet:"column"`
	Type        string  `parquet:"type"`
	Value       *string `parquet:"value,optional"`
}

type EncodeResult struct {
	Data      []byte
	RowCount  int64
	CellCount int64
}

// EncodeResultToParquet writes rs in long format, one record per cell, so a
// result of any shape fits a fixed schema.
func EncodeResultToParquet(rs value.ResultSet) (EncodeResult, error) {
	columns := rs.Columns
	if len(columns) == 0 && len(rs.Rows) > 0 {
		columns = rs.Rows[0].Columns()
	}

	cells := make([]cell, 0, len(rs.Rows)*len(columns))
	for i, row := range rs.Rows {
		for j, column := range columns {
			v, ok := row.Get(column)
			if !ok {
				v = value.Null()
			}
			c := cell{
				RowIndex:    int64(i),
				ColumnIndex: int32(j),
				Column:      column,
				Type:        v.TypeName(),
			}
			if !v.IsNull() {
				text := v.String()
				c.Value = &text
			}
			cells = append(cells, c)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[cell](buf)
	if _, err := writer.Write(cells); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet cells: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{Data: buf.Bytes(), RowCount: int64(len(rs.Rows)), CellCount: int64(len(cells))}, nil
}
