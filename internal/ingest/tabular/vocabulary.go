// Package tabular turns raw delimited metadata sheets into cleaned tables
// keyed by sample identifier. Column names vary per study; the vocabulary
// maps them onto a controlled set of field names whose declared kinds drive
// type coercion. The default vocabularies ship embedded so a run needs no
// external configuration, and a study-specific YAML file can replace them.
package tabular

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"biomecore/pkg/domain"
)

//go:embed vocab/sample.yaml
var defaultSampleVocab []byte

//go:embed vocab/prep.yaml
var defaultPrepVocab []byte

// FieldSpec declares one controlled-vocabulary field: its canonical name,
// semantic kind, optional target unit for quantity fields, and the source
// column spellings that map onto it. Essential marks fields whose coercion
// failure rejects the whole row instead of nulling the cell.
type FieldSpec struct {
	Name      string           `yaml:"name"`
	Kind      domain.ValueKind `yaml:"kind"`
	Unit      string           `yaml:"unit,omitempty"`
	Aliases   []string         `yaml:"aliases,omitempty"`
	Essential bool             `yaml:"essential,omitempty"`
}

// Vocabulary is the immutable alias/type configuration for one sheet kind.
// It is loaded once per run and shared read-only by the cleaner.
type Vocabulary struct {
	Identifier string      `yaml:"identifier"`
	Fields     []FieldSpec `yaml:"fields"`

	exact map[string]*FieldSpec
	fuzzy map[string]*FieldSpec
}

// ParseVocabulary decodes a YAML vocabulary and builds its lookup indexes.
func ParseVocabulary(r io.Reader) (*Vocabulary, error) {
	var v Vocabulary
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if err := v.index(); err != nil {
		return nil, err
	}
	return &v, nil
}

// LoadVocabulary reads a vocabulary from a YAML file on disk.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	return ParseVocabulary(f)
}

func mustParseVocabulary(raw []byte) *Vocabulary {
	v, err := ParseVocabulary(strings.NewReader(string(raw)))
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary: %v", err))
	}
	return v
}

// SampleVocabulary returns the embedded default vocabulary for sample and
// subject metadata sheets.
func SampleVocabulary() *Vocabulary { return mustParseVocabulary(defaultSampleVocab) }

// PrepVocabulary returns the embedded default vocabulary for preparation
// sheets.
func PrepVocabulary() *Vocabulary { return mustParseVocabulary(defaultPrepVocab) }

func (v *Vocabulary) index() error {
	if v.Identifier == "" {
		return fmt.Errorf("vocabulary declares no identifier field")
	}
	v.exact = make(map[string]*FieldSpec)
	v.fuzzy = make(map[string]*FieldSpec)
	for i := range v.Fields {
		f := &v.Fields[i]
		if f.Kind == "" {
			f.Kind = domain.KindText
		}
		for _, name := range append([]string{f.Name}, f.Aliases...) {
			key := NormalizeKey(name)
			if prev, dup := v.exact[key]; dup && prev != f {
				return fmt.Errorf("alias %q claimed by both %s and %s", name, prev.Name, f.Name)
			}
			v.exact[key] = f
			v.fuzzy[fuzzyKey(name)] = f
		}
	}
	if _, ok := v.exact[NormalizeKey(v.Identifier)]; !ok {
		return fmt.Errorf("identifier field %q not declared", v.Identifier)
	}
	return nil
}

// Resolve maps one raw column header onto its field spec. Exact alias
// matches are tried first, then a fuzzy match that ignores everything but
// letters and digits. Unknown headers return nil.
func (v *Vocabulary) Resolve(header string) *FieldSpec {
	if f, ok := v.exact[NormalizeKey(header)]; ok {
		return f
	}
	if f, ok := v.fuzzy[fuzzyKey(header)]; ok {
		return f
	}
	return nil
}

// NormalizeKey lowercases a header and collapses every run of
// non-alphanumeric characters into a single underscore.
func NormalizeKey(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	return b.String()
}

func fuzzyKey(s string) string {
	return strings.ReplaceAll(NormalizeKey(s), "_", "")
}
