// Package extract reads tabular data from flat files and HTTP endpoints into
// table.Table values, classifying failures per source: missing files, content
// that cannot be parsed as the declared format, and byte streams that cannot
// be decoded with the declared encoding each get their own error type so the
// orchestrator can decide how to react.
//
// Malformed data degrades (empty cells become null, empty sources yield
// zero-row tables with a logged warning); malformed inputs fail hard.
package extract

import (
	"fmt"
)

// NotFoundError reports a source path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source file not found: %s", e.Path)
}

// FormatError reports content that cannot be parsed as the declared format or
// is structurally incompatible with tabular extraction.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot parse %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// EncodingError reports bytes that cannot be decoded with the declared
// encoding.
type EncodingError struct {
	Path     string
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot decode %s as %s: %v", e.Path, e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Check is the result of a post-extraction validation pass. It is populated
// from the already-extracted table without re-reading the source.
type Check struct {
	Path          string
	RowsExtracted int
	ColumnsFound  []string
	IsValid       bool
	Errors        []string
	Warnings      []string
}
