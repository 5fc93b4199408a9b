package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"biomecore/internal/infra/persistence/sqlstore"
	"biomecore/pkg/domain"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func loadFixture(t *testing.T, s *sqlstore.Store, replace bool) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginStudyLoad(ctx, "1001", replace)
	if err != nil {
		t.Fatalf("BeginStudyLoad: %v", err)
	}
	steps := []error{
		tx.InsertStudy(domain.Study{ID: "1001", Title: "Moving pictures", Description: "daily series"}),
		tx.InsertSubject(domain.Subject{StudyID: "1001", ID: "sub-1", Sex: domain.SexFemale, Country: "usa"}),
		tx.InsertSample(domain.Sample{
			StudyID: "1001", ID: "S1", SubjectID: strPtr("sub-1"), Timepoint: intPtr(1),
			Age:      &domain.Quantity{Value: 30, Unit: "years", Normalized: true},
			BodySite: "feces",
			Metadata: map[string]domain.Value{"custom": domain.TextValue("v4")},
		}),
		tx.InsertSample(domain.Sample{StudyID: "1001", ID: "S2", SubjectID: strPtr("sub-1"), Timepoint: intPtr(2)}),
		tx.InsertPreparation(domain.Preparation{StudyID: "1001", ID: "P1", SampleID: "S1", Platform: "Illumina"}),
		tx.InsertSequenceVariant(domain.SequenceVariant{
			StudyID: "1001", ID: "OTU1",
			Lineage: domain.NewLineage([]string{"k__Bacteria", "p__Firmicutes"}),
		}),
		tx.InsertCount(domain.Count{StudyID: "1001", SampleID: "S1", VariantID: "OTU1", Abundance: 5}),
		tx.InsertPublication(domain.Publication{
			StudyID: "1001", PMID: "42", Title: "T",
			Authors: []domain.Author{{LastName: "Caporaso", FirstInitial: "J"}},
		}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	s := openStore(t)
	loadFixture(t, s, false)
	ctx := context.Background()

	study, ok, err := s.GetStudy(ctx, "1001")
	if err != nil || !ok || study.Title != "Moving pictures" {
		t.Fatalf("GetStudy = %+v, %v, %v", study, ok, err)
	}
	samples, err := s.ListSamples(ctx, "1001")
	if err != nil || len(samples) != 2 {
		t.Fatalf("ListSamples = %+v, %v", samples, err)
	}
	if samples[0].ID != "S1" || samples[1].ID != "S2" {
		t.Fatalf("timepoint ordering lost: %s, %s", samples[0].ID, samples[1].ID)
	}
	s1 := samples[0]
	if s1.SubjectID == nil || *s1.SubjectID != "sub-1" || s1.Age == nil || s1.Age.Value != 30 || s1.Age.Unit != "years" {
		t.Fatalf("sample fields lost: %+v", s1)
	}
	if v, ok := s1.Metadata["custom"]; !ok || v.Text != "v4" {
		t.Fatalf("metadata mapping lost: %+v", s1.Metadata)
	}
	variants, err := s.ListSequenceVariants(ctx, "1001")
	if err != nil || len(variants) != 1 {
		t.Fatalf("ListSequenceVariants = %+v, %v", variants, err)
	}
	if got := variants[0].Lineage.String(); got != "k__Bacteria; p__Firmicutes" {
		t.Fatalf("lineage round trip failed: %q", got)
	}
	pubs, err := s.ListPublications(ctx, "1001")
	if err != nil || len(pubs) != 1 || len(pubs[0].Authors) != 1 || pubs[0].Authors[0].LastName != "Caporaso" {
		t.Fatalf("ListPublications = %+v, %v", pubs, err)
	}
	counts, err := s.ListCounts(ctx, "1001")
	if err != nil || len(counts) != 1 || counts[0].Abundance != 5 {
		t.Fatalf("ListCounts = %+v, %v", counts, err)
	}
}

func TestDuplicateStudyRejectedAndReplace(t *testing.T) {
	s := openStore(t)
	loadFixture(t, s, false)
	ctx := context.Background()

	if _, err := s.BeginStudyLoad(ctx, "1001", false); !errors.Is(err, domain.ErrStudyExists) {
		t.Fatalf("want ErrStudyExists, got %v", err)
	}

	tx, err := s.BeginStudyLoad(ctx, "1001", true)
	if err != nil {
		t.Fatalf("BeginStudyLoad(replace): %v", err)
	}
	if err := tx.InsertStudy(domain.Study{ID: "1001", Title: "replaced"}); err != nil {
		t.Fatalf("InsertStudy: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	study, _, _ := s.GetStudy(ctx, "1001")
	if study.Title != "replaced" {
		t.Fatalf("title = %q", study.Title)
	}
	samples, _ := s.ListSamples(ctx, "1001")
	if len(samples) != 0 {
		t.Fatalf("replace must cascade; still %d samples", len(samples))
	}
}

func TestReplaceRollbackKeepsOriginal(t *testing.T) {
	s := openStore(t)
	loadFixture(t, s, false)
	ctx := context.Background()

	tx, err := s.BeginStudyLoad(ctx, "1001", true)
	if err != nil {
		t.Fatalf("BeginStudyLoad(replace): %v", err)
	}
	if err := tx.InsertStudy(domain.Study{ID: "1001", Title: "half-done"}); err != nil {
		t.Fatalf("InsertStudy: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	study, ok, _ := s.GetStudy(ctx, "1001")
	if !ok || study.Title != "Moving pictures" {
		t.Fatalf("original study must survive a rolled-back replace: %+v", study)
	}
	samples, _ := s.ListSamples(ctx, "1001")
	if len(samples) != 2 {
		t.Fatalf("original samples must survive, got %d", len(samples))
	}
}

func TestDanglingPreparationRollsBackWholeStudy(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tx, err := s.BeginStudyLoad(ctx, "2002", false)
	if err != nil {
		t.Fatalf("BeginStudyLoad: %v", err)
	}
	if err := tx.InsertStudy(domain.Study{ID: "2002"}); err != nil {
		t.Fatalf("InsertStudy: %v", err)
	}
	if err := tx.InsertSample(domain.Sample{StudyID: "2002", ID: "S1"}); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}
	var ie *domain.IntegrityError
	err = tx.InsertPreparation(domain.Preparation{StudyID: "2002", ID: "P1", SampleID: "ghost"})
	if !errors.As(err, &ie) {
		t.Fatalf("want IntegrityError, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, ok, _ := s.GetStudy(ctx, "2002"); ok {
		t.Fatal("full rollback must leave zero rows for the study")
	}
	samples, _ := s.ListSamples(ctx, "2002")
	if len(samples) != 0 {
		t.Fatalf("partial insert leaked: %+v", samples)
	}
}
