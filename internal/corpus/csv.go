package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadCSV reads a CSV with a header row and returns, per data row, the
// values of columns joined with sep. With no columns every field of the
// row is joined.
func ReadCSV(r io.Reader, columns []string, sep string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	indexes, err := columnIndexes(header, columns)
	if err != nil {
		return nil, err
	}

	var out []string
	parts := make([]string, len(indexes))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		for i, idx := range indexes {
			if idx >= len(record) {
				return nil, fmt.Errorf("csv line %d has %d fields, need column %q", line, len(record), header[idx])
			}
			parts[i] = record[idx]
		}
		out = append(out, strings.Join(parts, sep))
	}
	return out, nil
}

func columnIndexes(header, columns []string) ([]int, error) {
	if len(columns) == 0 {
		indexes := make([]int, len(header))
		for i := range header {
			indexes[i] = i
		}
		return indexes, nil
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimSpace(name)] = i
	}
	indexes := make([]int, 0, len(columns))
	for _, column := range columns {
		idx, ok := positions[strings.TrimSpace(column)]
		if !ok {
			return nil, fmt.Errorf("csv has no column %q", column)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}
