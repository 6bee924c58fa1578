package inspector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"kumorfm/pkg/fileops"
)

// LookupRows scans the file for rows whose keyColumn equals one of the
// requested ids and returns them in request order. Ids with no matching row
// are silently absent from the result. When one id matches several rows,
// the first occurrence wins.
func LookupRows(ctx context.Context, path, keyColumn string, ids []any) (*TablePreview, error) {
	if keyColumn == "" {
		return nil, fmt.Errorf("lookup requires a key column")
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("lookup requires at least one id")
	}
	if len(ids) > MaxPreviewRows {
		return nil, fmt.Errorf("lookup is limited to %d ids, got %d", MaxPreviewRows, len(ids))
	}

	expanded := fileops.ExpandPath(path)
	if err := fileops.ValidateFileAccess(expanded); err != nil {
		return nil, &NotFoundError{Path: path}
	}

	wanted := make(map[string]int, len(ids))
	for i, id := range ids {
		key := matchKey(id)
		if _, dup := wanted[key]; !dup {
			wanted[key] = i
		}
	}

	var (
		columns []string
		found   = make([]map[string]any, len(ids))
		err     error
	)
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".csv":
		columns, err = lookupCSV(ctx, expanded, keyColumn, wanted, found)
	case ".parquet":
		columns, err = lookupParquet(ctx, expanded, keyColumn, wanted, found)
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}
	if err != nil {
		return nil, err
	}

	preview := &TablePreview{Columns: columns, Rows: make([]map[string]any, 0, len(ids))}
	for _, row := range found {
		if row != nil {
			preview.Rows = append(preview.Rows, row)
		}
	}
	return preview, nil
}

func lookupCSV(ctx context.Context, path, keyColumn string, wanted map[string]int, found []map[string]any) ([]string, error) {
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

	keyIdx := -1
	for i, col := range columns {
		if col == keyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("column %q not found in %q", keyColumn, path)
	}

	remaining := len(wanted)
	for row := 0; remaining > 0; row++ {
		if row%1024 == 0 {
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
		if keyIdx >= len(record) {
			continue
		}

		pos, ok := wanted[matchKey(DecodeCell(record[keyIdx]))]
		if !ok || found[pos] != nil {
			continue
		}
		decoded := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(record) {
				decoded[col] = DecodeCell(record[i])
			}
		}
		found[pos] = decoded
		remaining--
	}
	return columns, nil
}

func lookupParquet(ctx context.Context, path, keyColumn string, wanted map[string]int, found []map[string]any) ([]string, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns := parquetColumns(pf)
	keyIdx := -1
	for i, col := range columns {
		if col == keyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("column %q not found in %q", keyColumn, path)
	}

	remaining := len(wanted)
	err = forEachParquetRow(ctx, pf, func(row parquet.Row) bool {
		var key any
		for _, value := range row {
			if value.Column() == keyIdx {
				key = convertParquetValue(value)
				break
			}
		}
		pos, ok := wanted[matchKey(key)]
		if !ok || found[pos] != nil {
			return true
		}

		decoded := make(map[string]any, len(columns))
		for _, value := range row {
			col := value.Column()
			if col < 0 || col >= len(columns) {
				continue
			}
			decoded[columns[col]] = convertParquetValue(value)
		}
		found[pos] = decoded
		remaining--
		return remaining > 0
	})
	if err != nil {
		return nil, fmt.Errorf("could not read file %q: %w", path, err)
	}
	return columns, nil
}

// matchKey reduces a decoded value to a canonical comparison string so ids
// arriving as JSON numbers match integer cells.
func matchKey(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
