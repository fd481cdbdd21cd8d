// Package tabular loads and projects the tabular text files (CSV price and
// flow snapshots) served by the cache. The cache treats these files as
// opaque beyond the caller-supplied projection descriptor; all schema
// interpretation lives here.
package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantmill/marketcache/cache"
)

// Row is one record of a table, in column order.
type Row []string

// Table is a parsed tabular payload: a header plus rows. It serializes to
// compact JSON for the durable tier.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ParseCSV reads a table from r. The first record is the header.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "tabular: parse csv")
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	t := &Table{Columns: records[0], Rows: make([]Row, 0, len(records)-1)}
	for _, rec := range records[1:] {
		t.Rows = append(t.Rows, Row(rec))
	}
	return t, nil
}

// Load parses the CSV file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close()
	return ParseCSV(f)
}

// CountRows streams the file at path and returns its data row count (header
// excluded) without materializing the table.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	count := -1 // skip the header
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, errors.Wrapf(err, "tabular: count %s", path)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Select returns a new table containing the requested columns in the
// requested order. Columns absent from the header yield
// cache.ErrProjectionUnavailable.
func (t *Table) Select(columns []string) (*Table, error) {
	indices := make([]int, len(columns))
	var missing []string
	for i, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		indices[i] = idx
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(cache.ErrProjectionUnavailable, "columns %s", strings.Join(missing, ","))
	}

	out := &Table{Columns: append([]string(nil), columns...), Rows: make([]Row, len(t.Rows))}
	for r, row := range t.Rows {
		selected := make(Row, len(indices))
		for i, idx := range indices {
			if idx < len(row) {
				selected[i] = row[idx]
			}
		}
		out.Rows[r] = selected
	}
	return out, nil
}

// LatestPerKey folds the table into the last row seen for each distinct
// value of keyCol. File order is the natural order, so for append-style
// sources the result is the most recent row per key.
func (t *Table) LatestPerKey(keyCol string) (map[string]Row, error) {
	idx := t.ColumnIndex(keyCol)
	if idx < 0 {
		return nil, errors.Wrapf(cache.ErrProjectionUnavailable, "key column %s", keyCol)
	}
	latest := make(map[string]Row)
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		latest[row[idx]] = row
	}
	return latest, nil
}

// Clone returns a deep copy, satisfying the memory tier's defensive-copy
// contract.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append(Row(nil), row...)
	}
	return out
}
