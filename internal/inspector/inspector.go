// Package inspector discovers and previews local tabular data files.
//
// The inspector is the leaf component of the server: it never touches the
// graph or the session. Discovery is extension-filtered and reads no file
// contents; preview and stats stream through files without loading them
// fully into memory.
package inspector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kumorfm/internal/logging"
	"kumorfm/pkg/fileops"
)

// TableSource describes a discovered candidate table file.
type TableSource struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`
	// Name is the base filename without extension, the default table name.
	Name string `json:"name"`
	// Bytes is the file size.
	Bytes int64 `json:"bytes"`
}

// Preview holds the leading rows of a table file.
type TablePreview struct {
	// Columns preserves the file's column order.
	Columns []string `json:"columns"`
	// Rows maps column names to decoded values.
	Rows []map[string]any `json:"rows"`
}

// Stats reports streaming statistics over a full file scan.
type TableStats struct {
	NumRows int64 `json:"num_rows"`
	// TimeMin/TimeMax are the lexical min/max of the requested time column
	// in its parsed form, empty when no time column was requested or found.
	TimeMin string `json:"time_min,omitempty"`
	TimeMax string `json:"time_max,omitempty"`
}

// NotFoundError indicates a missing file or directory.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q does not exist", e.Path)
}

// UnsupportedFormatError indicates a file extension the inspector cannot read.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%q is not a valid CSV or Parquet file", e.Path)
}

// MaxPreviewRows is the hard cap on preview size regardless of configuration.
const MaxPreviewRows = 1000

// DefaultPreviewRows is used when the caller does not specify a row count.
const DefaultPreviewRows = 20

var tabularExtensions = []string{".csv", ".parquet"}

// IsTabularFile reports whether the filename carries a supported extension.
func IsTabularFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range tabularExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover scans a directory for candidate table files. Only extensions are
// examined; file contents are never read. Results are sorted by path.
func Discover(ctx context.Context, dir string, recursive bool) ([]TableSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expanded := fileops.ExpandPath(dir)
	if info, err := os.Stat(expanded); err != nil || !info.IsDir() {
		return nil, &NotFoundError{Path: dir}
	}

	maxDepth := 1
	if recursive {
		maxDepth = 20
	}

	scanner, err := fileops.NewDirectoryScanner(expanded, &fileops.DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           maxDepth,
		IncludeHidden:      false,
		SkipPatterns:       []string{"node_modules", ".git", "vendor", "__pycache__", ".venv", "venv"},
		FileFilter:         IsTabularFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create directory scanner: %w", err)
	}
	defer scanner.Close()

	files, err := scanner.ScanDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	sources := make([]TableSource, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sources = append(sources, TableSource{
			Path:  filepath.Join(scanner.Root(), f.Path),
			Name:  strings.TrimSuffix(f.Name, filepath.Ext(f.Name)),
			Bytes: f.Size,
		})
	}

	logging.Debug("Discovered table files", "dir", dir, "count", len(sources))
	return sources, nil
}

// PreviewFile returns column names and up to numRows leading rows of a CSV or
// Parquet file. numRows outside [1, MaxPreviewRows] is clamped.
func PreviewFile(ctx context.Context, path string, numRows int) (*TablePreview, error) {
	if numRows < 1 {
		numRows = DefaultPreviewRows
	}
	if numRows > MaxPreviewRows {
		numRows = MaxPreviewRows
	}

	expanded := fileops.ExpandPath(path)
	if err := fileops.ValidateFileAccess(expanded); err != nil {
		return nil, &NotFoundError{Path: path}
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".csv":
		return previewCSV(ctx, expanded, numRows)
	case ".parquet":
		return previewParquet(ctx, expanded, numRows)
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}
}

// ScanStats streams through the whole file once, counting rows and, when
// timeColumn is non-empty, tracking the min/max of its parsed timestamps.
// Used by graph materialization; preview callers should not need it.
func ScanStats(ctx context.Context, path, timeColumn string) (*TableStats, error) {
	expanded := fileops.ExpandPath(path)
	if err := fileops.ValidateFileAccess(expanded); err != nil {
		return nil, &NotFoundError{Path: path}
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".csv":
		return statsCSV(ctx, expanded, timeColumn)
	case ".parquet":
		return statsParquet(ctx, expanded, timeColumn)
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}
}
