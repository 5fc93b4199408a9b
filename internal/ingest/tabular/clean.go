package tabular

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"biomecore/internal/ingest/units"
	"biomecore/pkg/domain"
)

// missingRe matches the missing-value sentinels used across the source
// ecosystem, optionally prefixed "missing:". The empty string is missing
// too; that case is handled before the regex.
var missingRe = regexp.MustCompile(`(?i)^(missing:\s*)?(not provided|not collected|restricted access|na|n/a|not applicable|none|unspecified|labcontrol test|no data|blank|null|unknown)$`)

// IsMissing reports whether a raw cell is one of the declared missing-value
// sentinels and must normalize to null.
func IsMissing(cell string) bool {
	s := strings.TrimSpace(cell)
	return s == "" || missingRe.MatchString(s)
}

// Row is one cleaned data row. Index is the 1-based position among data
// rows in the source file; Fields holds the coerced values keyed by
// controlled-vocabulary (or normalized unknown-column) name. Null cells are
// absent from Fields.
type Row struct {
	Index  int
	ID     string
	Fields map[string]domain.Value
}

// CleanTable is the cleaner's output: the resolved column names in source
// order plus the retained rows.
type CleanTable struct {
	File    string
	Columns []string
	Rows    []Row
}

// Row returns the first retained row with the given identifier.
func (t *CleanTable) Row(id string) (Row, bool) {
	for _, r := range t.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// Text returns the string form of a text, categorical, or identifier field.
func (r Row) Text(key string) string {
	v, ok := r.Fields[key]
	if !ok {
		return ""
	}
	return v.Text
}

// Number returns a numeric field value.
func (r Row) Number(key string) (float64, bool) {
	v, ok := r.Fields[key]
	if !ok || v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// Int returns a numeric field truncated to an integer.
func (r Row) Int(key string) (int, bool) {
	f, ok := r.Number(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns a boolean field value.
func (r Row) Bool(key string) (bool, bool) {
	v, ok := r.Fields[key]
	if !ok || v.Bool == nil {
		return false, false
	}
	return *v.Bool, true
}

// Time returns a timestamp field value.
func (r Row) Time(key string) (time.Time, bool) {
	v, ok := r.Fields[key]
	if !ok || v.Time == nil {
		return time.Time{}, false
	}
	return *v.Time, true
}

// Quantity returns a quantity field value.
func (r Row) Quantity(key string) (domain.Quantity, bool) {
	v, ok := r.Fields[key]
	if !ok || v.Quantity == nil {
		return domain.Quantity{}, false
	}
	return *v.Quantity, true
}

// column pairs one source header with its resolved spec. spec is nil for
// headers outside the vocabulary; those keep their normalized name and
// coerce as free text. unit is the default unit for bare magnitudes in a
// quantity column: a unit token embedded in the header ("height_cm") wins
// over the field's target unit.
type column struct {
	key  string
	spec *FieldSpec
	unit string
}

// headerUnit extracts a recognized unit token from the tail of a header,
// as in "weight_kg" or "age (years)".
func headerUnit(header string) string {
	parts := strings.Split(NormalizeKey(header), "_")
	if len(parts) < 2 {
		return ""
	}
	u, ok := units.Canonical(parts[len(parts)-1])
	if !ok {
		return ""
	}
	return u
}

// Clean reads one delimited metadata sheet and produces the cleaned,
// type-coerced table. The delimiter is sniffed from the header line (tab
// wins over comma). Structural problems with the file itself surface as a
// FormatError; per-row problems accumulate as diagnostics, with rejected
// rows excluded from the result.
func (v *Vocabulary) Clean(file string, r io.Reader) (*CleanTable, domain.Diagnostics, error) {
	header, records, err := readSheet(file, r)
	if err != nil {
		return nil, nil, err
	}

	idKey := NormalizeKey(v.Identifier)
	cols := make([]column, len(header))
	idCol := -1
	for i, h := range header {
		if spec := v.Resolve(h); spec != nil {
			cols[i] = column{key: spec.Name, spec: spec, unit: spec.Unit}
			if spec.Kind == domain.KindQuantity {
				if u := headerUnit(h); u != "" {
					cols[i].unit = u
				}
			}
			if spec.Name == idKey {
				idCol = i
			}
			continue
		}
		cols[i] = column{key: NormalizeKey(h)}
	}
	if idCol < 0 {
		return nil, nil, &domain.FormatError{File: file, Reason: fmt.Sprintf("no column maps to identifier %q", v.Identifier)}
	}

	dayFirst := inferDayFirstByColumn(cols, records)

	var diags domain.Diagnostics
	table := &CleanTable{File: file, Columns: columnNames(cols)}
	seen := make(map[string]int)
	for n, rec := range records {
		rowNum := n + 1
		if len(rec) != len(cols) {
			diags.AddRow(file, rowNum, "", "expected %d fields, got %d", len(cols), len(rec))
			continue
		}
		id := strings.TrimSpace(rec[idCol])
		if IsMissing(id) {
			diags.AddRow(file, rowNum, idKey, "missing identifier")
			continue
		}
		if first, dup := seen[id]; dup {
			diags.AddConflict(file, rowNum, idKey, "duplicate identifier %q first seen at row %d; keeping first", id, first)
			continue
		}
		seen[id] = rowNum

		row := Row{Index: rowNum, ID: id, Fields: make(map[string]domain.Value, len(cols))}
		for i, cell := range rec {
			col := cols[i]
			val, ok, err := coerce(cell, col.spec, col.unit, dayFirst[col.key])
			if err != nil {
				if col.spec != nil && col.spec.Essential {
					diags.AddRow(file, rowNum, col.key, "%v", err)
					row.Fields = nil
					break
				}
				diags.AddRow(file, rowNum, col.key, "%v; field nulled", err)
				continue
			}
			if ok {
				row.Fields[col.key] = val
			}
		}
		if row.Fields == nil {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, diags, nil
}

// coerce converts one raw cell according to the column's declared kind.
// Missing sentinels yield ok=false. Unknown columns coerce as text.
func coerce(cell string, spec *FieldSpec, defaultUnit string, dayFirst bool) (domain.Value, bool, error) {
	s := strings.TrimSpace(cell)
	if IsMissing(s) {
		return domain.Value{}, false, nil
	}
	kind := domain.KindText
	if spec != nil {
		kind = spec.Kind
	}
	switch kind {
	case domain.KindIdentifier:
		return domain.IdentifierValue(s), true, nil
	case domain.KindCategorical:
		return domain.CategoricalValue(strings.ToLower(s)), true, nil
	case domain.KindNumeric:
		if s == "-1" {
			return domain.Value{}, false, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return domain.Value{}, false, fmt.Errorf("not numeric: %q", s)
		}
		return domain.NumericValue(f), true, nil
	case domain.KindQuantity:
		if s == "-1" {
			return domain.Value{}, false, nil
		}
		q := units.ParseInto(s, defaultUnit, spec.Unit)
		return domain.QuantityValue(q), true, nil
	case domain.KindBool:
		b, err := parseBool(s)
		if err != nil {
			return domain.Value{}, false, err
		}
		return domain.BoolValue(b), true, nil
	case domain.KindTime:
		t, err := ParseDate(s, dayFirst)
		if err != nil {
			return domain.Value{}, false, err
		}
		return domain.TimeValue(t), true, nil
	default:
		return domain.TextValue(s), true, nil
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "t", "1":
		return true, nil
	case "false", "no", "n", "f", "0":
		return false, nil
	}
	return false, fmt.Errorf("not boolean: %q", s)
}

// inferDayFirstByColumn gathers every raw value of each time column and
// runs the day-first inference per column.
func inferDayFirstByColumn(cols []column, records [][]string) map[string]bool {
	out := make(map[string]bool)
	for i, col := range cols {
		if col.spec == nil || col.spec.Kind != domain.KindTime {
			continue
		}
		var values []string
		for _, rec := range records {
			if i < len(rec) && !IsMissing(rec[i]) {
				values = append(values, rec[i])
			}
		}
		out[col.key] = InferDayFirst(values)
	}
	return out
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.key
	}
	return names
}

// readSheet sniffs the delimiter from the header line and reads the whole
// sheet. Ragged rows surface later per row; an empty or header-less file is
// a FormatError.
func readSheet(file string, r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, &domain.FormatError{File: file, Reason: err.Error()}
	}
	line := string(head)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	delim := ','
	if strings.ContainsRune(line, '\t') {
		delim = '\t'
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, &domain.FormatError{File: file, Reason: err.Error()}
	}
	if len(all) == 0 || len(all[0]) == 0 {
		return nil, nil, &domain.FormatError{File: file, Reason: "empty sheet"}
	}
	return all[0], all[1:], nil
}
