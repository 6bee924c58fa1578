package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateFileAccess checks if a file exists and is readable. This provides a
// way to verify file accessibility before performing operations on it.
//
// Parameters:
//   - filePath: Path to the file to validate
//
// Returns:
//   - error: Validation errors if the file is missing, a directory, or unreadable
func ValidateFileAccess(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", filePath)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("file is not readable: %w", err)
	}
	file.Close()

	return nil
}

// ExpandPath expands a path that starts with "~/" to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// reservedPrefixes are system locations that should never be scanned for data
// files. Scanning them is always a mistake on the caller's side.
var reservedPrefixes = []string{
	"/etc",
	"/bin",
	"/sbin",
	"/usr/bin",
	"/usr/sbin",
	"/boot",
	"/dev",
	"/proc",
	"/sys",
	"/run",
}

// IsReservedDirectory checks if the path is a system or reserved directory
// that should not be scanned for data files.
func IsReservedDirectory(path string) bool {
	clean := filepath.Clean(path)

	if clean == "/" {
		return true
	}

	for _, prefix := range reservedPrefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+string(filepath.Separator)) {
			return true
		}
	}

	// Credential stores under the home directory
	if home, err := os.UserHomeDir(); err == nil {
		for _, sub := range []string{".ssh", ".gnupg", ".aws"} {
			guarded := filepath.Join(home, sub)
			if clean == guarded || strings.HasPrefix(clean, guarded+string(filepath.Separator)) {
				return true
			}
		}
	}

	return false
}
