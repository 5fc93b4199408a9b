// Package biom reads BIOM v1 count-table artifacts (the JSON container)
// and materializes sequence variants, taxonomic lineages, and sparse
// counts. The HDF5-based v2.1 container is recognized by magic and
// rejected as unreadable rather than misparsed.
package biom

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"biomecore/pkg/domain"
)

// hdf5Magic opens every HDF5 file, including BIOM v2.1 artifacts.
var hdf5Magic = []byte("\x89HDF\r\n\x1a\n")

// table is the BIOM v1 JSON container. Data layout depends on MatrixType:
// "sparse" rows are [row, column, value] triples, "dense" rows are full
// matrix rows.
type table struct {
	ID          string            `json:"id"`
	Format      string            `json:"format"`
	Type        string            `json:"type"`
	MatrixType  string            `json:"matrix_type"`
	Shape       []int             `json:"shape"`
	Rows        []axisElement     `json:"rows"`
	Columns     []axisElement     `json:"columns"`
	Data        [][]json.Number   `json:"data"`
}

type axisElement struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata"`
}

// axisMetadata carries the per-observation annotations we keep. Taxonomy
// is either a rank list or a single delimited string depending on the
// exporting tool.
type axisMetadata struct {
	Taxonomy taxonomyField `json:"taxonomy"`
}

type taxonomyField []string

func (t *taxonomyField) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*t = nil
		return nil
	}
	if b[0] == '[' {
		var parts []string
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*t = parts
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = nil
		return nil
	}
	*t = strings.Split(s, ";")
	return nil
}

// Result is the parsed artifact: one variant per observation row, counts
// for every accepted non-zero cell, and the accumulated diagnostics.
type Result struct {
	Variants    []domain.SequenceVariant
	Counts      []domain.Count
	Diagnostics domain.Diagnostics
}

// looksLikeSequence reports whether an observation id is itself the
// nucleotide sequence (ASV tables) rather than an opaque OTU id.
func looksLikeSequence(id string) bool {
	if len(id) < 20 {
		return false
	}
	for _, r := range id {
		switch r {
		case 'A', 'C', 'G', 'T':
		default:
			return false
		}
	}
	return true
}

// Parse reads one BIOM artifact and resolves its sample axis against the
// already-parsed samples. Cells referencing unknown samples are rejected
// individually; zero cells are never materialized; a duplicate
// (sample, variant) cell keeps the first value and flags the conflict. The
// variant/count order is deterministic: variants follow the observation
// axis, counts follow data order.
func Parse(studyID, file string, r io.Reader, knownSample func(string) bool) (*Result, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(hdf5Magic))
	if err == nil && bytes.Equal(head, hdf5Magic) {
		return nil, &domain.FormatError{File: file, Reason: "HDF5 (BIOM v2) container; only the JSON v1 format is supported"}
	}

	var t table
	dec := json.NewDecoder(br)
	dec.UseNumber()
	if err := dec.Decode(&t); err != nil {
		return nil, &domain.FormatError{File: file, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if !strings.HasPrefix(t.Format, "Biological Observation Matrix 1") {
		return nil, &domain.FormatError{File: file, Reason: fmt.Sprintf("unsupported format %q", t.Format)}
	}
	if len(t.Shape) != 2 || t.Shape[0] != len(t.Rows) || t.Shape[1] != len(t.Columns) {
		return nil, &domain.FormatError{File: file, Reason: "shape does not match axis lengths"}
	}

	res := &Result{}
	parseObservations(studyID, file, &t, res)

	switch t.MatrixType {
	case "sparse":
		parseSparse(studyID, file, &t, res, knownSample)
	case "dense":
		if len(t.Data) != len(t.Rows) {
			return nil, &domain.FormatError{File: file,
				Reason: fmt.Sprintf("dense matrix has %d data rows, want %d", len(t.Data), len(t.Rows))}
		}
		parseDense(studyID, file, &t, res, knownSample)
	default:
		return nil, &domain.FormatError{File: file, Reason: fmt.Sprintf("unknown matrix_type %q", t.MatrixType)}
	}
	return res, nil
}

// parseObservations builds one sequence variant per observation row,
// reconciling taxonomy: the first lineage seen for a variant id wins, and
// later disagreements are flagged for audit.
func parseObservations(studyID, file string, t *table, res *Result) {
	assigned := make(map[string]*domain.Lineage, len(t.Rows))
	seen := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		lineage := rowLineage(row)
		if first, dup := seen[row.ID]; dup {
			if conflictingLineage(assigned[row.ID], lineage) {
				res.Diagnostics.AddConflict(file, i+1, "taxonomy",
					"observation %q carries a different taxonomy than row %d; keeping first", row.ID, first)
			}
			continue
		}
		seen[row.ID] = i + 1
		assigned[row.ID] = lineage
		v := domain.SequenceVariant{StudyID: studyID, ID: row.ID, Lineage: lineage}
		if looksLikeSequence(row.ID) {
			v.Sequence = row.ID
		}
		res.Variants = append(res.Variants, v)
	}
}

func rowLineage(row axisElement) *domain.Lineage {
	if len(row.Metadata) == 0 || string(row.Metadata) == "null" {
		return nil
	}
	var md axisMetadata
	if err := json.Unmarshal(row.Metadata, &md); err != nil || len(md.Taxonomy) == 0 {
		return nil
	}
	return domain.NewLineage(md.Taxonomy)
}

func conflictingLineage(a, b *domain.Lineage) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil || b == nil:
		return true
	default:
		return a.String() != b.String()
	}
}

type cellKey struct {
	sample  string
	variant string
}

// addCell validates one matrix cell and appends its count. Shared by the
// sparse and dense walks so the invariants hold for both layouts.
func addCell(studyID, file string, res *Result, seen map[cellKey]struct{}, knownSample func(string) bool,
	cellNo int, sampleID, variantID string, value json.Number) {

	f, err := value.Float64()
	if err != nil {
		res.Diagnostics.AddRow(file, cellNo, "abundance", "non-numeric abundance %q", value.String())
		return
	}
	if f == 0 {
		return
	}
	if f < 0 || f != math.Trunc(f) {
		res.Diagnostics.AddRow(file, cellNo, "abundance", "abundance %v is not a non-negative integer", f)
		return
	}
	if !knownSample(sampleID) {
		res.Diagnostics.AddRow(file, cellNo, "sample", "cell references unknown sample %q", sampleID)
		return
	}
	key := cellKey{sample: sampleID, variant: variantID}
	if _, dup := seen[key]; dup {
		res.Diagnostics.AddConflict(file, cellNo, "cell", "duplicate cell (%s, %s); keeping first", sampleID, variantID)
		return
	}
	seen[key] = struct{}{}
	res.Counts = append(res.Counts, domain.Count{
		StudyID:   studyID,
		SampleID:  sampleID,
		VariantID: variantID,
		Abundance: uint64(f),
	})
}

func parseSparse(studyID, file string, t *table, res *Result, knownSample func(string) bool) {
	seen := make(map[cellKey]struct{})
	for n, triple := range t.Data {
		cellNo := n + 1
		if len(triple) != 3 {
			res.Diagnostics.AddRow(file, cellNo, "", "sparse entry has %d elements, want 3", len(triple))
			continue
		}
		row, errR := triple[0].Int64()
		col, errC := triple[1].Int64()
		if errR != nil || errC != nil ||
			row < 0 || int(row) >= len(t.Rows) || col < 0 || int(col) >= len(t.Columns) {
			res.Diagnostics.AddRow(file, cellNo, "", "sparse index [%s, %s] out of range", triple[0], triple[1])
			continue
		}
		addCell(studyID, file, res, seen, knownSample, cellNo, t.Columns[col].ID, t.Rows[row].ID, triple[2])
	}
}

func parseDense(studyID, file string, t *table, res *Result, knownSample func(string) bool) {
	seen := make(map[cellKey]struct{})
	cellNo := 0
	for i, row := range t.Data {
		if len(row) != len(t.Columns) {
			res.Diagnostics.AddRow(file, i+1, "", "dense row has %d columns, want %d", len(row), len(t.Columns))
			continue
		}
		for j, value := range row {
			cellNo++
			addCell(studyID, file, res, seen, knownSample, cellNo, t.Columns[j].ID, t.Rows[i].ID, value)
		}
	}
}
