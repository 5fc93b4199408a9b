package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"biomecore/internal/ingest/biom"
	"biomecore/internal/ingest/tabular"
	"biomecore/pkg/domain"
)

// Bundle is the conventional per-study directory layout produced by the
// fetcher: metadata sheets, count artifacts, and bibliographic XML, all
// named after their role. The directory name is the study identifier.
type Bundle struct {
	Dir     string
	StudyID string

	StudyInfoFiles []string
	SampleFiles    []string
	PrepFiles      []string
	CountFiles     []string
	PubFiles       []string
}

// DiscoverBundle classifies the files of one study directory by naming
// convention. Files that fit no role are ignored; a bundle without a
// sample sheet is unusable and rejected.
func DiscoverBundle(dir string) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read study bundle: %w", err)
	}
	b := &Bundle{Dir: dir, StudyID: filepath.Base(filepath.Clean(dir))}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		path := filepath.Join(dir, e.Name())
		switch {
		case strings.HasSuffix(name, ".biom"):
			b.CountFiles = append(b.CountFiles, path)
		case strings.HasSuffix(name, ".xml"):
			b.PubFiles = append(b.PubFiles, path)
		case strings.Contains(name, "prep"):
			b.PrepFiles = append(b.PrepFiles, path)
		case strings.Contains(name, "sample"):
			b.SampleFiles = append(b.SampleFiles, path)
		case strings.Contains(name, "study_info"):
			b.StudyInfoFiles = append(b.StudyInfoFiles, path)
		}
	}
	if len(b.SampleFiles) == 0 {
		return nil, fmt.Errorf("bundle %s: no sample metadata sheet", dir)
	}
	return b, nil
}

// Parser assembles study aggregates from bundles. Vocabularies are loaded
// once and shared across studies; zero value fields fall back to the
// embedded defaults.
type Parser struct {
	SampleVocab *tabular.Vocabulary
	PrepVocab   *tabular.Vocabulary
}

// NewParser returns a parser using the embedded default vocabularies.
func NewParser() *Parser {
	return &Parser{
		SampleVocab: tabular.SampleVocabulary(),
		PrepVocab:   tabular.PrepVocabulary(),
	}
}

// ParseBundle runs the full parse for one study: sample sheets first so
// preparations and counts can resolve against the sample set, then
// preparation sheets, count artifacts, and publication XML. Row-level and
// conflict diagnostics accumulate; a structurally unreadable artifact
// aborts with its FormatError.
func (p *Parser) ParseBundle(b *Bundle) (*domain.StudyAggregate, domain.Diagnostics, error) {
	agg := &domain.StudyAggregate{Study: domain.Study{ID: b.StudyID, Title: b.StudyID}}
	var diags domain.Diagnostics

	for _, f := range b.StudyInfoFiles {
		if err := readStudyInfo(f, &agg.Study); err != nil {
			return nil, diags, err
		}
	}

	subjectIdx := make(map[string]struct{})
	sampleIdx := make(map[string]int)
	for _, f := range b.SampleFiles {
		table, d, err := p.cleanFile(p.SampleVocab, f)
		if err != nil {
			return nil, diags, err
		}
		diags.Merge(d)
		subjects, samples, d2 := ParseSamples(b.StudyID, table)
		diags.Merge(d2)
		for _, s := range subjects {
			if _, dup := subjectIdx[s.ID]; dup {
				continue
			}
			subjectIdx[s.ID] = struct{}{}
			agg.Subjects = append(agg.Subjects, s)
		}
		for _, s := range samples {
			if row, dup := sampleIdx[s.ID]; dup {
				diags.AddConflict(f, 0, "sample_id", "sample %q already defined by an earlier sheet (row %d); keeping first", s.ID, row)
				continue
			}
			sampleIdx[s.ID] = len(agg.Samples)
			agg.Samples = append(agg.Samples, s)
		}
	}
	orderSamples(agg.Samples)
	known := sampleSet(agg.Samples)

	resolver := NewPrepResolver(b.StudyID)
	for _, f := range b.PrepFiles {
		table, d, err := p.cleanFile(p.PrepVocab, f)
		if err != nil {
			return nil, diags, err
		}
		diags.Merge(d)
		resolver.AddTable(table, known)
	}
	preps, d := resolver.Finish(known)
	diags.Merge(d)
	agg.Preparations = preps

	variantIdx := make(map[string]struct{})
	countIdx := make(map[string]struct{})
	for _, f := range b.CountFiles {
		res, err := p.parseCountFile(b.StudyID, f, known)
		if err != nil {
			return nil, diags, err
		}
		diags.Merge(res.Diagnostics)
		for _, v := range res.Variants {
			if _, dup := variantIdx[v.ID]; dup {
				continue
			}
			variantIdx[v.ID] = struct{}{}
			agg.Variants = append(agg.Variants, v)
		}
		for _, c := range res.Counts {
			key := c.SampleID + "\x00" + c.VariantID
			if _, dup := countIdx[key]; dup {
				diags.AddConflict(f, 0, "cell", "count (%s, %s) already supplied by an earlier artifact; keeping first", c.SampleID, c.VariantID)
				continue
			}
			countIdx[key] = struct{}{}
			agg.Counts = append(agg.Counts, c)
		}
	}

	pmidIdx := make(map[string]struct{})
	for _, f := range b.PubFiles {
		pubs, d, err := p.parsePubFile(b.StudyID, f)
		if err != nil {
			return nil, diags, err
		}
		diags.Merge(d)
		for _, pub := range pubs {
			if _, dup := pmidIdx[pub.PMID]; dup {
				continue
			}
			pmidIdx[pub.PMID] = struct{}{}
			agg.Publications = append(agg.Publications, pub)
		}
	}
	return agg, diags, nil
}

func (p *Parser) cleanFile(v *tabular.Vocabulary, path string) (*tabular.CleanTable, domain.Diagnostics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata sheet: %w", err)
	}
	defer f.Close()
	return v.Clean(filepath.Base(path), f)
}

func (p *Parser) parseCountFile(studyID, path string, known func(string) bool) (*biom.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open count artifact: %w", err)
	}
	defer f.Close()
	return biom.Parse(studyID, filepath.Base(path), f, known)
}

func (p *Parser) parsePubFile(studyID, path string) ([]domain.Publication, domain.Diagnostics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open publication XML: %w", err)
	}
	defer f.Close()
	return ParsePublications(studyID, filepath.Base(path), f)
}

// readStudyInfo merges a key/value study description sheet (tab separated,
// one pair per line) into the study record. Unknown keys are ignored.
func readStudyInfo(path string, study *domain.Study) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read study info: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		key, value, ok := strings.Cut(strings.TrimRight(line, "\r"), "\t")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch tabular.NormalizeKey(key) {
		case "study_title", "title":
			study.Title = value
		case "study_description", "description", "study_abstract":
			study.Description = value
		case "source_name":
			study.SourceName = value
		case "source_type":
			study.SourceType = value
		case "source_url":
			study.SourceURL = value
		}
	}
	return nil
}
