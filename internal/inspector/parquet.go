package inspector

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

func openParquet(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("could not stat file %q: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("could not read file %q: %w", path, err)
	}
	return f, pf, nil
}

func parquetColumns(pf *parquet.File) []string {
	fields := pf.Schema().Fields()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name()
	}
	return columns
}

func previewParquet(ctx context.Context, path string, numRows int) (*TablePreview, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns := parquetColumns(pf)
	preview := &TablePreview{Columns: columns, Rows: make([]map[string]any, 0, numRows)}

	err = forEachParquetRow(ctx, pf, func(row parquet.Row) bool {
		decoded := make(map[string]any, len(columns))
		for _, value := range row {
			col := value.Column()
			if col < 0 || col >= len(columns) {
				continue
			}
			decoded[columns[col]] = convertParquetValue(value)
		}
		preview.Rows = append(preview.Rows, decoded)
		return len(preview.Rows) < numRows
	})
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}

	return preview, nil
}

func statsParquet(ctx context.Context, path, timeColumn string) (*TableStats, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := &TableStats{NumRows: pf.NumRows()}
	if timeColumn == "" {
		return stats, nil
	}

	columns := parquetColumns(pf)
	timeIdx := -1
	for i, col := range columns {
		if col == timeColumn {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return stats, nil
	}

	var minTime, maxTime time.Time
	err = forEachParquetRow(ctx, pf, func(row parquet.Row) bool {
		for _, value := range row {
			if value.Column() != timeIdx {
				continue
			}
			if ts, ok := parquetTimestamp(value); ok {
				if minTime.IsZero() || ts.Before(minTime) {
					minTime = ts
				}
				if maxTime.IsZero() || ts.After(maxTime) {
					maxTime = ts
				}
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}

	if !minTime.IsZero() {
		stats.TimeMin = FormatTimestamp(minTime)
		stats.TimeMax = FormatTimestamp(maxTime)
	}
	return stats, nil
}

// forEachParquetRow streams rows through fn until fn returns false or the
// file is exhausted.
func forEachParquetRow(ctx context.Context, pf *parquet.File, fn func(parquet.Row) bool) error {
	buf := make([]parquet.Row, 64)

	for _, rowGroup := range pf.RowGroups() {
		rows := rowGroup.Rows()

		for {
			if err := ctx.Err(); err != nil {
				rows.Close()
				return err
			}

			n, err := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				if !fn(buf[i]) {
					rows.Close()
					return nil
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return err
			}
			if n == 0 {
				break
			}
		}

		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

func convertParquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	default:
		return v.String()
	}
}

func parquetTimestamp(v parquet.Value) (time.Time, bool) {
	if v.IsNull() {
		return time.Time{}, false
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return ParseTimestamp(v.String())
	case parquet.Int64:
		// Epoch timestamps: assume millis above the microsecond threshold
		n := v.Int64()
		switch {
		case n > 1e15:
			return time.UnixMicro(n).UTC(), true
		case n > 1e12:
			return time.UnixMilli(n).UTC(), true
		case n > 0:
			return time.Unix(n, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
