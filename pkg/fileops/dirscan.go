package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DirectoryScanOptions configures the behavior of directory scanning operations.
type DirectoryScanOptions struct {
	// SkipUnreadableDirs determines whether to skip directories that cannot be read
	// or to return an error. Setting to true makes scanning more resilient.
	SkipUnreadableDirs bool

	// MaxDepth limits the maximum recursion depth for directory traversal.
	// A MaxDepth of 1 scans only the top-level directory.
	MaxDepth int

	// IncludeHidden determines whether to include files and directories that start with '.'
	IncludeHidden bool

	// SkipPatterns contains directory names that should be skipped during scanning.
	// These are exact matches against directory names (not full paths).
	SkipPatterns []string

	// FileFilter is an optional function that determines whether a file should be included.
	// If nil, all files are included.
	FileFilter func(filename string) bool
}

// FileInfo represents information about a discovered file during directory scanning.
type FileInfo struct {
	// Name is the base filename without path components
	Name string

	// Path is the relative path from the scan root to this file
	Path string

	// Size is the file size in bytes
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// DirectoryScanner provides secure, configurable directory scanning. The
// scanner operates within a security boundary defined by an os.Root,
// preventing access to files outside the designated scan area.
type DirectoryScanner struct {
	root     *os.Root
	opts     *DirectoryScanOptions
	visited  map[string]bool
	scanRoot string
}

// NewDirectoryScanner creates a new secure directory scanner for the given path.
//
// Parameters:
//   - scanPath: The directory path to scan (can be relative or absolute, "~/" is expanded)
//   - opts: Scanning options (if nil, sensible defaults are used)
//
// Returns:
//   - *DirectoryScanner: Configured scanner instance
//   - error: Setup errors including path validation and access issues
func NewDirectoryScanner(scanPath string, opts *DirectoryScanOptions) (*DirectoryScanner, error) {
	if opts == nil {
		opts = defaultScanOptions()
	}

	if strings.TrimSpace(scanPath) == "" {
		return nil, fmt.Errorf("scan path cannot be empty")
	}

	expandedPath := ExpandPath(scanPath)
	absPath, err := filepath.Abs(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scan path: %w", err)
	}

	if IsReservedDirectory(absPath) {
		return nil, fmt.Errorf("cannot scan reserved/system directory: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access scan path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan path is not a directory: %s", absPath)
	}

	// Secure root keeps traversal inside the scan area even through symlinks
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot create secure scan root: %w", err)
	}

	return &DirectoryScanner{
		root:     root,
		opts:     opts,
		visited:  make(map[string]bool),
		scanRoot: absPath,
	}, nil
}

func defaultScanOptions() *DirectoryScanOptions {
	return &DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           1,
		IncludeHidden:      false,
		SkipPatterns:       defaultSkipPatterns(),
	}
}

func defaultSkipPatterns() []string {
	return []string{
		"node_modules",
		".git",
		"vendor",
		"target",
		"build",
		"dist",
		".cache",
		"__pycache__",
		".venv",
		"venv",
		".vscode",
		".idea",
	}
}

// Close releases resources associated with the scanner.
func (s *DirectoryScanner) Close() error {
	if s.root != nil {
		err := s.root.Close()
		s.root = nil
		return err
	}
	return nil
}

// Root returns the absolute path the scanner is bound to.
func (s *DirectoryScanner) Root() string {
	return s.scanRoot
}

// ScanDirectory performs a scan of the configured directory and returns
// discovered files matching the configured criteria, sorted by relative path.
func (s *DirectoryScanner) ScanDirectory() ([]FileInfo, error) {
	if s.root == nil {
		return nil, fmt.Errorf("scanner has been closed")
	}

	s.visited = make(map[string]bool)

	var results []FileInfo
	if err := s.scanRecursive(".", 1, &results); err != nil {
		return nil, fmt.Errorf("directory scan failed: %w", err)
	}

	slices.SortFunc(results, func(a, b FileInfo) int {
		return strings.Compare(a.Path, b.Path)
	})
	return results, nil
}

func (s *DirectoryScanner) scanRecursive(relativePath string, depth int, results *[]FileInfo) error {
	if depth > s.opts.MaxDepth {
		return nil
	}

	// visited map breaks symlink loops
	cleanPath := filepath.Clean(relativePath)
	if s.visited[cleanPath] {
		return nil
	}
	s.visited[cleanPath] = true

	dir, err := s.root.Open(relativePath)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to open directory %s: %w", relativePath, err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", relativePath, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(relativePath, entry.Name())

		if entry.IsDir() {
			if s.shouldSkipDirectory(entry.Name()) {
				continue
			}
			if err := s.scanRecursive(entryPath, depth+1, results); err != nil {
				return err
			}
			continue
		}

		if !s.shouldIncludeFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if s.opts.SkipUnreadableDirs {
				continue
			}
			return fmt.Errorf("failed to get file info for %s: %w", entryPath, err)
		}

		*results = append(*results, FileInfo{
			Name:    entry.Name(),
			Path:    entryPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return nil
}

func (s *DirectoryScanner) shouldSkipDirectory(dirName string) bool {
	if !s.opts.IncludeHidden && strings.HasPrefix(dirName, ".") {
		return true
	}
	return slices.Contains(s.opts.SkipPatterns, dirName)
}

func (s *DirectoryScanner) shouldIncludeFile(fileName string) bool {
	if !s.opts.IncludeHidden && strings.HasPrefix(fileName, ".") {
		return false
	}
	if s.opts.FileFilter != nil {
		return s.opts.FileFilter(fileName)
	}
	return true
}
