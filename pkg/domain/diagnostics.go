package domain

import "fmt"

// DiagnosticKind classifies an ingestion problem per the error taxonomy:
// row-level coercion/resolution failures, non-fatal data conflicts, and the
// fatal referential and format classes.
type DiagnosticKind string

// Diagnostic kinds.
const (
	// DiagRow marks a single row or cell that failed coercion or
	// resolution; the row is excluded and processing continues.
	DiagRow DiagnosticKind = "row"
	// DiagConflict marks a non-fatal data inconsistency recorded for audit
	// (duplicate identifier, conflicting taxonomy assignment).
	DiagConflict DiagnosticKind = "conflict"
	// DiagReferential marks a dangling entity reference detected during
	// parsing; the referencing row is rejected.
	DiagReferential DiagnosticKind = "referential"
)

// Diagnostic is one recorded ingestion problem. Row is 1-based over data
// rows (the header does not count) and zero when not row-scoped.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	File    string         `json:"file,omitempty"`
	Row     int            `json:"row,omitempty"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	s := string(d.Kind)
	if d.File != "" {
		s += " " + d.File
	}
	if d.Row > 0 {
		s += fmt.Sprintf(" row %d", d.Row)
	}
	if d.Field != "" {
		s += " [" + d.Field + "]"
	}
	return s + ": " + d.Message
}

// Diagnostics accumulates problems encountered while parsing one study.
// Parsers return it alongside their entities instead of failing the file.
type Diagnostics []Diagnostic

// AddRow records a row-level failure.
func (ds *Diagnostics) AddRow(file string, row int, field, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Kind: DiagRow, File: file, Row: row, Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddConflict records a non-fatal inconsistency.
func (ds *Diagnostics) AddConflict(file string, row int, field, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Kind: DiagConflict, File: file, Row: row, Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddReferential records a dangling reference found during parsing.
func (ds *Diagnostics) AddReferential(file string, row int, field, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Kind: DiagReferential, File: file, Row: row, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all diagnostics from other.
func (ds *Diagnostics) Merge(other Diagnostics) {
	*ds = append(*ds, other...)
}

// Kind returns the diagnostics of the given kind.
func (ds Diagnostics) Kind(kind DiagnosticKind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// FormatError reports that an input artifact is structurally unreadable.
// It is fatal for the study load; no partial parse is attempted.
type FormatError struct {
	File   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.File == "" {
		return "unreadable artifact: " + e.Reason
	}
	return fmt.Sprintf("unreadable artifact %s: %s", e.File, e.Reason)
}

// IntegrityError reports that an entity references another entity that does
// not exist at resolution time. At load time it causes full rollback of the
// study.
type IntegrityError struct {
	Entity EntityType
	ID     string
	Ref    EntityType
	RefID  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %q references missing %s %q", e.Entity, e.ID, e.Ref, e.RefID)
}
