package inspector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

func previewCSV(ctx context.Context, path string, numRows int) (*TablePreview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}
	columns := make([]string, len(header))
	copy(columns, header)

	preview := &TablePreview{Columns: columns, Rows: make([]map[string]any, 0, numRows)}

	for len(preview.Rows) < numRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read file %q: %w", path, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = DecodeCell(record[i])
			}
		}
		preview.Rows = append(preview.Rows, row)
	}

	return preview, nil
}

func statsCSV(ctx context.Context, path, timeColumn string) (*TableStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}

	timeIdx := -1
	for i, col := range header {
		if col == timeColumn {
			timeIdx = i
			break
		}
	}

	stats := &TableStats{}
	var minTime, maxTime time.Time

	for i := 0; ; i++ {
		// cancellation check amortized over row batches
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read file %q: %w", path, err)
		}

		stats.NumRows++

		if timeIdx >= 0 && timeIdx < len(record) {
			if ts, ok := ParseTimestamp(record[timeIdx]); ok {
				if minTime.IsZero() || ts.Before(minTime) {
					minTime = ts
				}
				if maxTime.IsZero() || ts.After(maxTime) {
					maxTime = ts
				}
			}
		}
	}

	if !minTime.IsZero() {
		stats.TimeMin = FormatTimestamp(minTime)
		stats.TimeMax = FormatTimestamp(maxTime)
	}
	return stats, nil
}
