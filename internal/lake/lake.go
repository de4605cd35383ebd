// Package lake persists table snapshots to a filesystem data lake under a
// two-level namespace: raw/<source>/<source>_<timestamp>.<ext> for extracted
// data and processed/<name>_<timestamp>.<ext> for transformed data. Snapshots
// are append-only; concurrent runs never collide because every file carries
// its run timestamp.
package lake

import (
	"bytes"
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"

	"salesetl/pkg/table"
)

// Format names a snapshot encoding.
type Format string

const (
	// Binary is a snappy-compressed gob of column vectors. It is the only
	// format that preserves cell types exactly.
	Binary Format = "binary"
	// CSV is delimited text; cell types are re-inferred on read.
	CSV Format = "csv"
	// JSON is line-oriented JSON, one object per row.
	JSON Format = "json"
)

// TimestampLayout is the second-granularity snapshot timestamp. Callers that
// pass one timestamp to several saves correlate the files of a single run.
const TimestampLayout = "20060102_150405"

// UnsupportedFormatError reports an unrecognized snapshot format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported lake format %q", e.Format)
}

// Storage writes and reads snapshots below a base directory.
type Storage struct {
	base string
}

// NewStorage returns a Storage rooted at base. The directory tree is created
// lazily on first save.
func NewStorage(base string) *Storage {
	return &Storage{base: base}
}

// Base returns the lake root.
func (s *Storage) Base() string { return s.base }

// SaveRaw snapshots t under raw/<source>/. A zero ts means time.Now.
// The written path is returned.
func (s *Storage) SaveRaw(t *table.Table, source string, format Format, ts time.Time) (string, error) {
	dir := filepath.Join(s.base, "raw", source)
	return s.save(t, dir, source, format, ts)
}

// SaveProcessed snapshots t under processed/. A zero ts means time.Now.
func (s *Storage) SaveProcessed(t *table.Table, name string, format Format, ts time.Time) (string, error) {
	dir := filepath.Join(s.base, "processed")
	return s.save(t, dir, name, format, ts)
}

func (s *Storage) save(t *table.Table, dir, name string, format Format, ts time.Time) (string, error) {
	data, ext, err := encode(t, format)
	if err != nil {
		return "", err
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("lake: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, ts.Format(TimestampLayout), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("lake: write %s: %w", path, err)
	}
	log.Printf("lake: saved %s rows=%d bytes=%d", path, t.NumRows(), len(data))
	return path, nil
}

func encode(t *table.Table, format Format) ([]byte, string, error) {
	switch format {
	case Binary:
		data, err := encodeBinary(t)
		return data, "bin", err
	case CSV:
		data, err := encodeCSV(t)
		return data, "csv", err
	case JSON:
		data, err := encodeJSON(t)
		return data, "json", err
	default:
		return nil, "", &UnsupportedFormatError{Format: string(format)}
	}
}

// Read loads a snapshot back, selecting the codec by file extension.
func Read(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lake: read %s: %w", path, err)
	}
	switch ext := strings.TrimPrefix(filepath.Ext(path), "."); ext {
	case "bin":
		return decodeBinary(data)
	case "csv":
		return decodeCSV(data)
	case "json":
		return decodeJSON(data)
	default:
		return nil, &UnsupportedFormatError{Format: ext}
	}
}

// Columnar binary codec. Cells are split per column into a kind vector and a
// payload record so gob stays compact; the whole frame is snappy-compressed.

type binCell struct {
	K uint8
	I int64
	F float64
	S string
	B bool
	T time.Time
}

type binFile struct {
	Names []string
	Cols  [][]binCell
}

func encodeBinary(t *table.Table) ([]byte, error) {
	f := binFile{Names: t.Columns()}
	for _, name := range f.Names {
		col, _ := t.Column(name)
		cells := make([]binCell, len(col))
		for i, v := range col {
			cells[i] = toBinCell(v)
		}
		f.Cols = append(f.Cols, cells)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("lake: encode binary: %w", err)
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func decodeBinary(data []byte) (*table.Table, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("lake: decompress: %w", err)
	}
	var f binFile
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return nil, fmt.Errorf("lake: decode binary: %w", err)
	}
	if len(f.Cols) != len(f.Names) {
		return nil, fmt.Errorf("lake: decode binary: %d columns for %d names", len(f.Cols), len(f.Names))
	}
	t, err := table.New(f.Names...)
	if err != nil {
		return nil, err
	}
	rows := 0
	if len(f.Cols) > 0 {
		rows = len(f.Cols[0])
	}
	cells := make([]table.Value, len(f.Names))
	for r := 0; r < rows; r++ {
		for c := range f.Names {
			if r >= len(f.Cols[c]) {
				return nil, fmt.Errorf("lake: decode binary: ragged column %s", f.Names[c])
			}
			cells[c] = fromBinCell(f.Cols[c][r])
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func toBinCell(v table.Value) binCell {
	c := binCell{K: uint8(v.Kind())}
	switch v.Kind() {
	case table.KindInt:
		c.I, _ = v.Int()
	case table.KindFloat:
		c.F, _ = v.Float()
	case table.KindText:
		c.S, _ = v.Text()
	case table.KindBool:
		c.B, _ = v.Bool()
	case table.KindTime:
		c.T, _ = v.Time()
	}
	return c
}

func fromBinCell(c binCell) table.Value {
	switch table.Kind(c.K) {
	case table.KindInt:
		return table.Int(c.I)
	case table.KindFloat:
		return table.Float(c.F)
	case table.KindText:
		return table.Text(c.S)
	case table.KindBool:
		return table.Bool(c.B)
	case table.KindTime:
		return table.Time(c.T)
	default:
		return table.Null()
	}
}

func encodeCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns()); err != nil {
		return nil, fmt.Errorf("lake: encode csv: %w", err)
	}
	names := t.Columns()
	rec := make([]string, len(names))
	for i := 0; i < t.NumRows(); i++ {
		for c, name := range names {
			rec[c] = t.At(i, name).String()
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("lake: encode csv: %w", err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func decodeCSV(data []byte) (*table.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("lake: decode csv: %w", err)
	}
	if len(recs) == 0 {
		return table.New()
	}
	return table.FromStrings(recs[0], recs[1:])
}

func encodeJSON(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	names := t.Columns()
	for i := 0; i < t.NumRows(); i++ {
		row := make(map[string]any, len(names))
		for _, name := range names {
			row[name] = t.At(i, name).Any()
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("lake: encode json: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeJSON(data []byte) (*table.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	for dec.More() {
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("lake: decode json: %w", err)
		}
		rows = append(rows, row)
	}

	var names []string
	seen := map[string]struct{}{}
	for _, row := range rows {
		var added []string
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				added = append(added, k)
			}
		}
		for i := 1; i < len(added); i++ {
			for j := i; j > 0 && added[j] < added[j-1]; j-- {
				added[j], added[j-1] = added[j-1], added[j]
			}
		}
		names = append(names, added...)
	}

	t, err := table.New(names...)
	if err != nil {
		return nil, err
	}
	cells := make([]table.Value, len(names))
	for _, row := range rows {
		for i, name := range names {
			v, ok := row[name]
			if !ok {
				cells[i] = table.Null()
				continue
			}
			switch x := v.(type) {
			case json.Number:
				if n, err := x.Int64(); err == nil {
					cells[i] = table.Int(n)
				} else if f, err := x.Float64(); err == nil {
					cells[i] = table.Float(f)
				} else {
					cells[i] = table.Text(x.String())
				}
			default:
				cells[i] = table.FromAny(v)
			}
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
