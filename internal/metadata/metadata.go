// Package metadata summarises a result set for chart configuration.
package metadata

import (
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

// MaxUniqueValues caps the distinct-value count reported per column.
const MaxUniqueValues = 100

type DataMetadata struct {
	ColumnCount    int              `json:"column_count"`
	RowCount       int              `json:"row_count"`
	ColumnMetadata []ColumnMetadata `json:"column_metadata"`
}

// ColumnMetadata describes one column. MinValue and MaxValue are float64 for
// numeric columns, strings for date and timestamp columns, nil otherwise.
type ColumnMetadata struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	SimpleType   string `json:"simple_type"`
	UniqueValues int    `json:"unique_values"`
	MinValue     any    `json:"min_value"`
	MaxValue     any    `json:"max_value"`
}

// Describe reports the shape of rs. The column type is taken from the first
// row, so an all-NULL first row reports the NULL's declared kind.
func Describe(rs value.ResultSet) DataMetadata {
	if len(rs.Rows) == 0 {
		return DataMetadata{ColumnMetadata: []ColumnMetadata{}}
	}

	columns := rs.Columns
	if len(columns) == 0 {
		columns = rs.Rows[0].Columns()
	}
	out := DataMetadata{
		ColumnCount:    len(columns),
		RowCount:       len(rs.Rows),
		ColumnMetadata: make([]ColumnMetadata, 0, len(columns)),
	}
	for _, column := range columns {
		out.ColumnMetadata = append(out.ColumnMetadata, describeColumn(column, rs.Rows))
	}
	return out
}

func describeColumn(column string, rows []*value.Row) ColumnMetadata {
	first, _ := rows[0].Get(column)
	meta := ColumnMetadata{
		Name:       column,
		Type:       first.TypeName(),
		SimpleType: first.SimpleType(),
	}

	distinct := newValueSet(MaxUniqueValues)
	var (
		numMin, numMax   float64
		hasNumber        bool
		timeMin, timeMax value.Value
		hasTime          bool
	)
	for _, row := range rows {
		v, ok := row.Get(column)
		if !ok {
			continue
		}
		distinct.add(v)

		if n, ok := v.Number(); ok {
			if !hasNumber || n < numMin {
				numMin = n
			}
			if !hasNumber || n > numMax {
				numMax = n
			}
			hasNumber = true
			continue
		}
		if t, ok := datelike(v); ok {
			if !hasTime || t.Before(mustTime(timeMin)) {
				timeMin = v
			}
			if !hasTime || t.After(mustTime(timeMax)) {
				timeMax = v
			}
			hasTime = true
		}
	}

	meta.UniqueValues = distinct.len()
	switch {
	case hasTime:
		meta.MinValue = formatTime(timeMin)
		meta.MaxValue = formatTime(timeMax)
	case hasNumber:
		meta.MinValue = numMin
		meta.MaxValue = numMax
	}
	return meta
}

// datelike returns the instant of a date or timestamp value. Time-of-day
// values have no calendar position and are skipped.
func datelike(v value.Value) (time.Time, bool) {
	switch v.Kind() {
	case value.KindDate, value.KindTimestamp, value.KindTimestamptz:
		return v.TimeValue()
	}
	return time.Time{}, false
}

func mustTime(v value.Value) time.Time {
	t, _ := v.TimeValue()
	return t
}

func formatTime(v value.Value) string {
	t, _ := v.TimeValue()
	switch v.Kind() {
	case value.KindDate:
		return t.Format(value.DateLayout)
	case value.KindTimestamptz:
		return t.UTC().Format("2006-01-02 15:04:05.999999999")
	default:
		return t.Format("2006-01-02 15:04:05.999999999")
	}
}

// valueSet counts distinct values up to a limit using Hash and Equal.
type valueSet struct {
	limit   int
	count   int
	buckets map[uint64][]value.Value
}

func newValueSet(limit int) *valueSet {
	return &valueSet{limit: limit, buckets: make(map[uint64][]value.Value)}
}

func (s *valueSet) add(v value.Value) {
	if s.count >= s.limit {
		return
	}
	h := v.Hash()
	for _, existing := range s.buckets[h] {
		if existing.Equal(v) {
			return
		}
	}
	s.buckets[h] = append(s.buckets[h], v)
	s.count++
}

func (s *valueSet) len() int { return s.count }
