// Package fileops provides secure, bounded directory scanning for local data
// files. Scans operate within an os.Root boundary so that symlinks cannot
// escape the requested directory, with configurable depth limits, skip
// patterns, and file filters.
package fileops
