package memory

import (
	"context"
	"fmt"
	"sync"

	"biomecore/pkg/domain"
)

// tx stages one study aggregate and validates referential integrity on
// every insert, so violations surface at the offending insert rather than
// at commit. Nothing touches the store until Commit.
type tx struct {
	store   *Store
	studyID string
	replace bool

	mu   sync.Mutex
	done bool

	study        *domain.Study
	subjects     []domain.Subject
	samples      []domain.Sample
	preparations []domain.Preparation
	variants     []domain.SequenceVariant
	counts       []domain.Count
	publications []domain.Publication

	subjectIDs map[string]struct{}
	sampleIDs  map[string]struct{}
	variantIDs map[string]struct{}
	cellKeys   map[[2]string]struct{}
	prepIDs    map[string]struct{}
	pmids      map[string]struct{}
}

var _ domain.StudyTransaction = (*tx)(nil)

func newTx(store *Store, studyID string, replace bool) *tx {
	return &tx{
		store:      store,
		studyID:    studyID,
		replace:    replace,
		subjectIDs: make(map[string]struct{}),
		sampleIDs:  make(map[string]struct{}),
		variantIDs: make(map[string]struct{}),
		cellKeys:   make(map[[2]string]struct{}),
		prepIDs:    make(map[string]struct{}),
		pmids:      make(map[string]struct{}),
	}
}

func (t *tx) InsertStudy(study domain.Study) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if study.ID != t.studyID {
		return fmt.Errorf("study %q does not match transaction scope %q", study.ID, t.studyID)
	}
	if t.study != nil {
		return fmt.Errorf("study %q already inserted in this transaction", study.ID)
	}
	t.study = &study
	return nil
}

func (t *tx) InsertSubject(subject domain.Subject) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(subject.StudyID); err != nil {
		return err
	}
	if _, dup := t.subjectIDs[subject.ID]; dup {
		return fmt.Errorf("duplicate subject %q", subject.ID)
	}
	t.subjectIDs[subject.ID] = struct{}{}
	t.subjects = append(t.subjects, subject)
	return nil
}

func (t *tx) InsertSample(sample domain.Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(sample.StudyID); err != nil {
		return err
	}
	if _, dup := t.sampleIDs[sample.ID]; dup {
		return fmt.Errorf("duplicate sample %q", sample.ID)
	}
	if sample.SubjectID != nil {
		if _, ok := t.subjectIDs[*sample.SubjectID]; !ok {
			return &domain.IntegrityError{
				Entity: domain.EntitySample, ID: sample.ID,
				Ref: domain.EntitySubject, RefID: *sample.SubjectID,
			}
		}
	}
	t.sampleIDs[sample.ID] = struct{}{}
	t.samples = append(t.samples, sample)
	return nil
}

func (t *tx) InsertPreparation(prep domain.Preparation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(prep.StudyID); err != nil {
		return err
	}
	if _, dup := t.prepIDs[prep.ID]; dup {
		return fmt.Errorf("duplicate preparation %q", prep.ID)
	}
	if _, ok := t.sampleIDs[prep.SampleID]; !ok {
		return &domain.IntegrityError{
			Entity: domain.EntityPreparation, ID: prep.ID,
			Ref: domain.EntitySample, RefID: prep.SampleID,
		}
	}
	t.prepIDs[prep.ID] = struct{}{}
	t.preparations = append(t.preparations, prep)
	return nil
}

func (t *tx) InsertSequenceVariant(v domain.SequenceVariant) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(v.StudyID); err != nil {
		return err
	}
	if _, dup := t.variantIDs[v.ID]; dup {
		return fmt.Errorf("duplicate sequence variant %q", v.ID)
	}
	t.variantIDs[v.ID] = struct{}{}
	t.variants = append(t.variants, v)
	return nil
}

func (t *tx) InsertCount(c domain.Count) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(c.StudyID); err != nil {
		return err
	}
	if c.Abundance == 0 {
		return fmt.Errorf("count (%s, %s): zero abundance must not be materialized", c.SampleID, c.VariantID)
	}
	if _, ok := t.sampleIDs[c.SampleID]; !ok {
		return &domain.IntegrityError{
			Entity: domain.EntityCount, ID: c.SampleID + "/" + c.VariantID,
			Ref: domain.EntitySample, RefID: c.SampleID,
		}
	}
	if _, ok := t.variantIDs[c.VariantID]; !ok {
		return &domain.IntegrityError{
			Entity: domain.EntityCount, ID: c.SampleID + "/" + c.VariantID,
			Ref: domain.EntitySequenceVariant, RefID: c.VariantID,
		}
	}
	key := [2]string{c.SampleID, c.VariantID}
	if _, dup := t.cellKeys[key]; dup {
		return fmt.Errorf("duplicate count (%s, %s)", c.SampleID, c.VariantID)
	}
	t.cellKeys[key] = struct{}{}
	t.counts = append(t.counts, c)
	return nil
}

func (t *tx) InsertPublication(p domain.Publication) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireStudy(p.StudyID); err != nil {
		return err
	}
	if _, dup := t.pmids[p.PMID]; dup {
		return fmt.Errorf("duplicate publication %q", p.PMID)
	}
	t.pmids[p.PMID] = struct{}{}
	t.publications = append(t.publications, p)
	return nil
}

// Commit publishes the staged aggregate. The existence check repeats under
// the store's write lock so the whole operation is atomic.
func (t *tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.study == nil {
		return fmt.Errorf("commit without study record")
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.studies[t.studyID]; exists {
		if !t.replace {
			return fmt.Errorf("study %q: %w", t.studyID, domain.ErrStudyExists)
		}
		s.deleteStudyLocked(t.studyID)
	}
	s.studies[t.studyID] = *t.study
	s.subjects[t.studyID] = t.subjects
	s.samples[t.studyID] = t.samples
	s.preparations[t.studyID] = t.preparations
	s.variants[t.studyID] = t.variants
	s.counts[t.studyID] = t.counts
	s.publications[t.studyID] = t.publications
	return nil
}

// Rollback discards the staged aggregate. Safe to call after a failed
// Commit; it never touches published state.
func (t *tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	return nil
}

func (t *tx) usable() error {
	if t.done {
		return fmt.Errorf("transaction for study %q already finished", t.studyID)
	}
	return nil
}

func (t *tx) requireStudy(studyID string) error {
	if err := t.usable(); err != nil {
		return err
	}
	if t.study == nil {
		return fmt.Errorf("study record must be inserted first")
	}
	if studyID != t.studyID {
		return fmt.Errorf("entity study %q does not match transaction scope %q", studyID, t.studyID)
	}
	return nil
}
