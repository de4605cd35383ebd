package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"salesetl/pkg/table"
)

// CSVOptions configures delimited-text extraction. Zero values get defaults:
// comma delimiter, UTF-8 encoding, header on the first row.
type CSVOptions struct {
	// Delimiter is the field separator. Zero means ','.
	Delimiter rune

	// Encoding names the source byte encoding: "utf-8" (default),
	// "latin-1"/"iso-8859-1", or "windows-1252".
	Encoding string

	// HeaderRow is the zero-based index of the header row; rows before it
	// are discarded.
	HeaderRow int

	// TrimSpace strips leading/trailing spaces from every field.
	TrimSpace bool
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// CSV extracts a delimited text file into a typed table. Cell types are
// inferred per column at ingestion (int, float, bool, otherwise text; empty
// cells are null). An empty source yields a zero-row table and a warning.
func CSV(path string, opt CSVOptions) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, encName, err := decodeReader(f, opt.Encoding)
	if err != nil {
		return nil, &EncodingError{Path: path, Encoding: encName, Err: err}
	}

	cr := csv.NewReader(r)
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	// Discard rows preceding the header.
	for i := 0; i < opt.HeaderRow; i++ {
		if _, err := cr.Read(); err == io.EOF {
			break
		} else if err != nil {
			return nil, classifyCSVErr(path, encName, err)
		}
	}

	header, err := cr.Read()
	if err == io.EOF {
		log.Printf("extract: csv %s is empty", path)
		return table.New()
	}
	if err != nil {
		return nil, classifyCSVErr(path, encName, err)
	}
	headers := normalizeHeaders(header)

	var rows [][]string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyCSVErr(path, encName, err)
		}
		if opt.TrimSpace {
			for i := range row {
				row[i] = strings.TrimSpace(row[i])
			}
		}
		rows = append(rows, append([]string(nil), row...))
	}

	t, err := table.FromStrings(headers, rows)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	if t.NumRows() == 0 {
		log.Printf("extract: csv %s has a header but no rows", path)
	}
	return t, nil
}

// CSVWithValidation extracts and then checks a required-column set and an
// optional expected row count against the result, without re-reading the
// source. expectedRows < 0 disables the row-count check.
func CSVWithValidation(path string, opt CSVOptions, required []string, expectedRows int) (*table.Table, Check, error) {
	t, err := CSV(path, opt)
	if err != nil {
		return nil, Check{Path: path}, err
	}

	chk := Check{
		Path:          path,
		RowsExtracted: t.NumRows(),
		ColumnsFound:  t.Columns(),
		IsValid:       true,
	}
	var missing []string
	for _, col := range required {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		chk.IsValid = false
		chk.Errors = append(chk.Errors, fmt.Sprintf("missing required columns: %v", missing))
	}
	if expectedRows >= 0 && t.NumRows() != expectedRows {
		chk.Warnings = append(chk.Warnings, fmt.Sprintf("expected %d rows, got %d", expectedRows, t.NumRows()))
	}
	return t, chk, nil
}

// decodeReader wraps r with a decoder for the named encoding. UTF-8 input is
// validated so undecodable bytes surface as errors instead of replacement
// runes.
func decodeReader(r io.Reader, name string) (io.Reader, string, error) {
	canonical := strings.ToLower(strings.TrimSpace(name))
	if canonical == "" {
		canonical = "utf-8"
	}
	switch canonical {
	case "utf-8", "utf8":
		return transform.NewReader(r, encoding.UTF8Validator), "utf-8", nil
	case "latin-1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), canonical, nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), canonical, nil
	default:
		return nil, canonical, fmt.Errorf("unknown encoding %q", canonical)
	}
}

// classifyCSVErr maps a read failure to the taxonomy: csv parse errors are
// format errors, everything else surfaced through the decoder is an encoding
// error.
func classifyCSVErr(path, encName string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &FormatError{Path: path, Err: err}
	}
	return &EncodingError{Path: path, Encoding: encName, Err: err}
}

// normalizeHeaders trims each header cell, strips a UTF-8 BOM from the first
// one, and lowercases with spaces collapsed to underscores.
func normalizeHeaders(h []string) []string {
	out := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		out[i] = strings.ReplaceAll(strings.ToLower(c), " ", "_")
	}
	return out
}
