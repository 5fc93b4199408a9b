// Package ingest builds the in-memory study aggregate from a per-study
// file bundle: cleaned metadata tables become subjects, samples, and
// preparations, the count artifact becomes sequence variants and counts,
// and bibliographic XML becomes publications. Parsers accumulate
// diagnostics instead of failing files; only structurally unreadable
// artifacts abort a study.
package ingest

import (
	"regexp"
	"sort"
	"strings"

	"biomecore/internal/ingest/tabular"
	"biomecore/pkg/domain"
)

// identifierRe bounds the charset accepted for subject identifiers. A
// subject id outside it (embedded whitespace, stray punctuation) usually
// means a shifted or mangled row, so the row is rejected rather than
// minting a phantom subject.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// sampleColumns are the cleaned-table fields consumed into dedicated
// Sample/Subject attributes; everything else lands in Sample.Metadata.
var sampleColumns = map[string]struct{}{
	"sample_id": {}, "subject_id": {}, "study_id": {}, "timepoint": {},
	"collection_timestamp": {}, "age": {}, "height": {}, "weight": {},
	"bmi": {}, "latitude": {}, "longitude": {}, "elevation": {},
	"body_site": {}, "body_habitat": {}, "body_product": {},
	"env_biome": {}, "env_feature": {},
	"sex": {}, "country": {}, "race": {}, "csection": {},
	"disease": {}, "date_of_birth": {},
}

// ParseSamples converts a cleaned sample metadata table into subjects and
// samples for one study. A subject is created on its first encounter and
// reused by later rows; demographic fields come from the creating row, and
// later rows that disagree are flagged. Samples come back ordered by
// declared timepoint with source row order breaking ties.
func ParseSamples(studyID string, table *tabular.CleanTable) ([]domain.Subject, []domain.Sample, domain.Diagnostics) {
	var (
		diags    domain.Diagnostics
		samples  []domain.Sample
		subjects []domain.Subject
		byID     = make(map[string]int)
	)
	for _, row := range table.Rows {
		subjectID := row.Text("subject_id")
		if subjectID != "" && !identifierRe.MatchString(subjectID) {
			diags.AddRow(table.File, row.Index, "subject_id", "malformed subject identifier %q", subjectID)
			continue
		}

		sample := domain.Sample{
			StudyID:  studyID,
			ID:       row.ID,
			Metadata: make(map[string]domain.Value),
		}
		if subjectID != "" {
			sample.SubjectID = &subjectID
			if i, seen := byID[subjectID]; seen {
				checkSubjectConsistency(&diags, table.File, row, subjects[i])
			} else {
				byID[subjectID] = len(subjects)
				subjects = append(subjects, newSubject(studyID, subjectID, row))
			}
		}
		if tp, ok := row.Int("timepoint"); ok {
			sample.Timepoint = &tp
		}
		if ts, ok := row.Time("collection_timestamp"); ok {
			sample.CollectedAt = &ts
		}
		if q, ok := row.Quantity("age"); ok {
			sample.Age = &q
		}
		if q, ok := row.Quantity("height"); ok {
			sample.Height = &q
		}
		if q, ok := row.Quantity("weight"); ok {
			sample.Weight = &q
		}
		if f, ok := row.Number("bmi"); ok {
			sample.BMI = &f
		}
		if f, ok := row.Number("latitude"); ok {
			sample.Latitude = &f
		}
		if f, ok := row.Number("longitude"); ok {
			sample.Longitude = &f
		}
		if f, ok := row.Number("elevation"); ok {
			sample.Elevation = &f
		}
		sample.BodySite = row.Text("body_site")
		sample.BodyHabitat = row.Text("body_habitat")
		sample.BodyProduct = row.Text("body_product")
		sample.EnvBiome = row.Text("env_biome")
		sample.EnvFeature = row.Text("env_feature")
		for key, v := range row.Fields {
			if _, claimed := sampleColumns[key]; !claimed {
				sample.Metadata[key] = v
			}
		}
		samples = append(samples, sample)
	}

	orderSamples(samples)
	return subjects, samples, diags
}

// orderSamples sorts by declared timepoint, keeping source row order for
// ties and for samples without one. Samples lacking a timepoint sort after
// those that declare one.
func orderSamples(samples []domain.Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i].Timepoint, samples[j].Timepoint
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

func newSubject(studyID, id string, row tabular.Row) domain.Subject {
	s := domain.Subject{
		StudyID: studyID,
		ID:      id,
		Sex:     parseSex(row.Text("sex")),
		Country: row.Text("country"),
		Race:    row.Text("race"),
		Disease: row.Text("disease"),
	}
	if b, ok := row.Bool("csection"); ok {
		s.CSection = &b
	}
	if t, ok := row.Time("date_of_birth"); ok {
		s.DateOfBirth = &t
	}
	return s
}

// checkSubjectConsistency flags rows whose demographics contradict the
// subject created from an earlier row. The first-seen values stand.
func checkSubjectConsistency(diags *domain.Diagnostics, file string, row tabular.Row, subject domain.Subject) {
	if sex := parseSex(row.Text("sex")); sex != "" && subject.Sex != "" && sex != subject.Sex {
		diags.AddConflict(file, row.Index, "sex", "subject %q declared %s here but %s earlier; keeping first", subject.ID, sex, subject.Sex)
	}
	if c := row.Text("country"); c != "" && subject.Country != "" && c != subject.Country {
		diags.AddConflict(file, row.Index, "country", "subject %q declared %q here but %q earlier; keeping first", subject.ID, c, subject.Country)
	}
}

func parseSex(raw string) domain.Sex {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m":
		return domain.SexMale
	case "female", "f":
		return domain.SexFemale
	case "not applicable":
		return domain.SexNotApplicable
	case "":
		return ""
	default:
		return domain.SexNotKnown
	}
}
