package domain

import (
	"fmt"
	"strings"
	"time"
)

// ValueKind tags the semantic type of one normalized metadata value.
type ValueKind string

// Semantic value kinds produced by the metadata table cleaner.
const (
	KindQuantity    ValueKind = "quantity"
	KindNumeric     ValueKind = "numeric"
	KindCategorical ValueKind = "categorical"
	KindText        ValueKind = "text"
	KindIdentifier  ValueKind = "identifier"
	KindBool        ValueKind = "bool"
	KindTime        ValueKind = "time"
)

// Quantity is a numeric magnitude with a unit. When Normalized is true the
// unit is canonical and the value has been converted into it; otherwise the
// unit (or the whole Raw string, when no magnitude parsed) is passed through
// unchanged for audit.
type Quantity struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Raw        string  `json:"raw,omitempty"`
	Normalized bool    `json:"normalized"`
}

// IsRaw reports whether no numeric magnitude could be extracted and the
// quantity only retains the original string.
func (q Quantity) IsRaw() bool {
	return !q.Normalized && q.Unit == "" && q.Raw != ""
}

func (q Quantity) String() string {
	if q.IsRaw() {
		return q.Raw
	}
	if q.Unit == "" {
		return fmt.Sprintf("%g", q.Value)
	}
	return fmt.Sprintf("%g %s", q.Value, q.Unit)
}

// Value is the tagged union stored in the free-form sample metadata mapping.
// Exactly the field matching Kind is meaningful.
type Value struct {
	Kind     ValueKind  `json:"kind"`
	Quantity *Quantity  `json:"quantity,omitempty"`
	Number   *float64   `json:"number,omitempty"`
	Bool     *bool      `json:"bool,omitempty"`
	Time     *time.Time `json:"time,omitempty"`
	Text     string     `json:"text,omitempty"`
}

// TextValue wraps a free-text string.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// CategoricalValue wraps a controlled-vocabulary string.
func CategoricalValue(s string) Value { return Value{Kind: KindCategorical, Text: s} }

// IdentifierValue wraps an identifier string.
func IdentifierValue(s string) Value { return Value{Kind: KindIdentifier, Text: s} }

// NumericValue wraps a plain number.
func NumericValue(f float64) Value { return Value{Kind: KindNumeric, Number: &f} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: &b} }

// TimeValue wraps a timestamp.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: &t} }

// QuantityValue wraps a quantity.
func QuantityValue(q Quantity) Value { return Value{Kind: KindQuantity, Quantity: &q} }

// RankCount is the fixed depth of the taxonomy: domain through species.
const RankCount = 7

// Rank names in canonical order, aligned with Lineage rank indices.
var RankNames = [RankCount]string{
	"kingdom", "phylum", "class", "order", "family", "genus", "species",
}

// LineageDelimiter separates ranks in a serialized taxonomy string.
const LineageDelimiter = "; "

// Lineage is the ordered taxonomic classification assigned to a sequence
// variant. A nil rank is unresolved; ranks present in the source are kept
// verbatim (including bare Greengenes prefixes such as "g__") so that
// splitting and re-joining reproduces the original string.
type Lineage struct {
	Ranks [RankCount]*string `json:"ranks"`
}

// NewLineage builds a lineage from up to RankCount ordered rank strings.
// Missing trailing ranks stay unresolved.
func NewLineage(parts []string) *Lineage {
	l := &Lineage{}
	for i, p := range parts {
		if i >= RankCount {
			break
		}
		p := strings.TrimSpace(p)
		l.Ranks[i] = &p
	}
	return l
}

// Depth returns the number of leading ranks present in the source string.
func (l *Lineage) Depth() int {
	n := 0
	for i, r := range l.Ranks {
		if r != nil {
			n = i + 1
		}
	}
	return n
}

// Rank returns the verbatim rank string at index i, or "" when unresolved.
func (l *Lineage) Rank(i int) string {
	if i < 0 || i >= RankCount || l.Ranks[i] == nil {
		return ""
	}
	return *l.Ranks[i]
}

// Resolved reports whether rank i carries information beyond a bare
// Greengenes prefix ("k__", "p__", ...).
func (l *Lineage) Resolved(i int) bool {
	r := l.Rank(i)
	if r == "" {
		return false
	}
	if len(r) == 3 && r[1] == '_' && r[2] == '_' {
		return false
	}
	return true
}

// String re-joins the present ranks with the fixed delimiter. For every
// lineage parsed from a taxonomy string this round-trips the input.
func (l *Lineage) String() string {
	parts := make([]string, 0, RankCount)
	for i := 0; i < l.Depth(); i++ {
		parts = append(parts, l.Rank(i))
	}
	return strings.Join(parts, LineageDelimiter)
}
