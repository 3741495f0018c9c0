package clearbooks

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseCSV decodes a CSV body into a Table with the resource's column rules.
// Any deviation is returned as an error; no partial table is produced.
func (def resourceDef) parseCSV(body []byte) (*Table, error) {
	body = bytes.TrimPrefix(body, utf8BOM)

	r := csv.NewReader(bytes.NewReader(body))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns, err := def.normaliseHeader(header)
	if err != nil {
		return nil, err
	}

	table := NewTable(columns)
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = strings.TrimSpace(record[i])
		}
		if err := def.normaliseRow(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func (def resourceDef) normaliseHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if def.exact {
			name = snakeCase(name)
		}
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}

	var missing []string
	for _, want := range def.columns {
		if _, ok := seen[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %v", missing)
	}
	if def.exact && len(columns) != len(def.columns) {
		return nil, fmt.Errorf("expected %d columns, got %d (%v)", len(def.columns), len(columns), columns)
	}
	return columns, nil
}

func (def resourceDef) normaliseRow(row Row) error {
	for _, col := range def.dates {
		v := row[col]
		if v == "" {
			continue
		}
		d, err := parseRemoteDate(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
		row[col] = d.Format(isoDate)
	}
	for _, col := range def.numbers {
		v := row[col]
		if v == "" {
			continue
		}
		if _, err := parseNumber(v); err != nil {
			return fmt.Errorf("column %s: %q is not a number", col, v)
		}
		row[col] = strings.ReplaceAll(v, ",", "")
	}
	return nil
}

func parseRemoteDate(v string) (time.Time, error) {
	for _, layout := range []string{DateFormat, isoDate, "02/01/06"} {
		if d, err := time.Parse(layout, v); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a DD/MM/YYYY date", v)
}

func snakeCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(s)
}
