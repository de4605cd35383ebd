package extract

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"salesetl/pkg/table"
)

// JSON extracts a structured text file whose top level is either an array of
// objects or a single object (flattened to one row). Nested objects flatten
// into dotted column names; arrays are kept as their JSON text. Numbers are
// decoded with json.Number so integral values stay integers.
func JSON(path string) (*table.Table, error) {
	doc, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	rows, err := rowsFromDoc(doc)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		log.Printf("extract: json %s contains no records", path)
	}
	return tableFromMaps(rows)
}

// JSONNested extracts records addressed by a dotted sub-path inside a
// structured document (e.g. "catalog.products"), one row per leaf record.
// Fields named in meta are copied from the enclosing document onto every row.
// When the path does not resolve to a record list, the whole document is
// flattened instead and a warning is emitted.
func JSONNested(path, recordPath string, meta ...string) (*table.Table, error) {
	doc, err := readJSON(path)
	if err != nil {
		return nil, err
	}

	target := doc
	resolved := recordPath != ""
	for _, seg := range strings.Split(recordPath, ".") {
		obj, ok := target.(map[string]any)
		if !ok {
			resolved = false
			break
		}
		target, ok = obj[seg]
		if !ok {
			resolved = false
			break
		}
	}
	if recordPath == "" {
		resolved = false
	}
	if !resolved {
		log.Printf("extract: json %s: record path %q not found, flattening whole document", path, recordPath)
		target = doc
	}

	rows, err := rowsFromDoc(target)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	// Propagate metadata fields from the document root onto each row.
	if root, ok := doc.(map[string]any); ok && resolved {
		for _, m := range meta {
			v, ok := root[m]
			if !ok {
				continue
			}
			for _, row := range rows {
				if _, exists := row[m]; !exists {
					row[m] = v
				}
			}
		}
	}
	if len(rows) == 0 {
		log.Printf("extract: json %s contains no records under %q", path, recordPath)
	}
	return tableFromMaps(rows)
}

func readJSON(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return doc, nil
}

// rowsFromDoc converts a decoded document into flat row maps. Arrays must
// contain objects; a bare object becomes a single row.
func rowsFromDoc(doc any) ([]map[string]any, error) {
	switch d := doc.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(d))
		for i, el := range d {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is %T, want object", i, el)
			}
			rows = append(rows, flatten(obj, ""))
		}
		return rows, nil
	case map[string]any:
		return []map[string]any{flatten(d, "")}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("top-level value is %T, want object or array of objects", doc)
	}
}

// flatten collapses nested objects into dotted keys. Arrays are preserved as
// their JSON text so the cell stays scalar.
func flatten(obj map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			for nk, nv := range flatten(t, key) {
				out[nk] = nv
			}
		case []any:
			b, err := json.Marshal(t)
			if err != nil {
				out[key] = fmt.Sprint(t)
			} else {
				out[key] = string(b)
			}
		default:
			out[key] = v
		}
	}
	return out
}

// tableFromMaps assembles a typed table from row maps. Missing keys become
// null cells.
func tableFromMaps(rows []map[string]any) (*table.Table, error) {
	names := stableNames(rows)

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
			cells[i] = cellFromJSON(v)
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// stableNames returns the union of keys across rows, sorted within the set
// each row introduces, so column order is deterministic.
func stableNames(rows []map[string]any) []string {
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
		sortStrings(added)
		names = append(names, added...)
	}
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// cellFromJSON maps a decoded JSON scalar to a cell. json.Number becomes an
// integer when it has no fractional part.
func cellFromJSON(v any) table.Value {
	switch t := v.(type) {
	case nil:
		return table.Null()
	case bool:
		return table.Bool(t)
	case string:
		return table.Text(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return table.Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return table.Float(f)
		}
		return table.Text(t.String())
	default:
		return table.FromAny(v)
	}
}
