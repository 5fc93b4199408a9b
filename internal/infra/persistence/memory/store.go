// Package memory provides the reference in-memory persistent store. It
// enforces the same referential integrity and load atomicity as the SQL
// stores and backs them as the staging layer, so the semantics live in one
// place.
package memory

import (
	"context"
	"fmt"
	"sync"

	"biomecore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Store keeps all studies in per-study buckets guarded by one lock. Reads
// return copies; callers never observe internal state.
type Store struct {
	mu           sync.RWMutex
	studies      map[string]domain.Study
	subjects     map[string][]domain.Subject
	samples      map[string][]domain.Sample
	preparations map[string][]domain.Preparation
	variants     map[string][]domain.SequenceVariant
	counts       map[string][]domain.Count
	publications map[string][]domain.Publication
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		studies:      make(map[string]domain.Study),
		subjects:     make(map[string][]domain.Subject),
		samples:      make(map[string][]domain.Sample),
		preparations: make(map[string][]domain.Preparation),
		variants:     make(map[string][]domain.SequenceVariant),
		counts:       make(map[string][]domain.Count),
		publications: make(map[string][]domain.Publication),
	}
}

// BeginStudyLoad opens a staging transaction for one study. The existence
// check runs here and again at Commit, so two concurrent loads of the same
// study cannot both land.
func (s *Store) BeginStudyLoad(_ context.Context, studyID string, replace bool) (domain.StudyTransaction, error) {
	s.mu.RLock()
	_, exists := s.studies[studyID]
	s.mu.RUnlock()
	if exists && !replace {
		return nil, fmt.Errorf("study %q: %w", studyID, domain.ErrStudyExists)
	}
	return newTx(s, studyID, replace), nil
}

// GetStudy returns one study record by identifier.
func (s *Store) GetStudy(_ context.Context, id string) (domain.Study, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.studies[id]
	return study, ok, nil
}

// ListStudies returns every persisted study.
func (s *Store) ListStudies(_ context.Context) ([]domain.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Study, 0, len(s.studies))
	for _, study := range s.studies {
		out = append(out, study)
	}
	return out, nil
}

// ListSubjects returns the subjects of one study in load order.
func (s *Store) ListSubjects(_ context.Context, studyID string) ([]domain.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.subjects[studyID]), nil
}

// ListSamples returns the samples of one study in load order.
func (s *Store) ListSamples(_ context.Context, studyID string) ([]domain.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.samples[studyID]), nil
}

// ListPreparations returns the preparations of one study in load order.
func (s *Store) ListPreparations(_ context.Context, studyID string) ([]domain.Preparation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.preparations[studyID]), nil
}

// ListSequenceVariants returns the sequence variants of one study in load order.
func (s *Store) ListSequenceVariants(_ context.Context, studyID string) ([]domain.SequenceVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.variants[studyID]), nil
}

// ListCounts returns the counts of one study in load order.
func (s *Store) ListCounts(_ context.Context, studyID string) ([]domain.Count, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.counts[studyID]), nil
}

// ListPublications returns the publications of one study in load order.
func (s *Store) ListPublications(_ context.Context, studyID string) ([]domain.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.publications[studyID]), nil
}

// Close releases nothing; it satisfies the store contract.
func (s *Store) Close() error { return nil }

// deleteStudyLocked drops one study and everything it owns. Callers hold
// the write lock.
func (s *Store) deleteStudyLocked(studyID string) {
	delete(s.studies, studyID)
	delete(s.subjects, studyID)
	delete(s.samples, studyID)
	delete(s.preparations, studyID)
	delete(s.variants, studyID)
	delete(s.counts, studyID)
	delete(s.publications, studyID)
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
