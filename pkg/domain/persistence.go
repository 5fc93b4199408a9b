package domain

import (
	"context"
	"errors"
)

// ErrStudyExists is returned by BeginStudyLoad when the study identifier is
// already persisted and replace was not requested.
var ErrStudyExists = errors.New("study already loaded")

// StudyTransaction is the atomic scope for persisting one study aggregate.
// Inserts fail with *IntegrityError on dangling references; after any
// failure the caller must Rollback. Commit makes the whole study durable.
type StudyTransaction interface {
	InsertStudy(Study) error
	InsertSubject(Subject) error
	InsertSample(Sample) error
	InsertPreparation(Preparation) error
	InsertSequenceVariant(SequenceVariant) error
	InsertCount(Count) error
	InsertPublication(Publication) error
	Commit(ctx context.Context) error
	Rollback() error
}

// PersistentStore is the storage collaborator consumed by the loader. It
// exposes the transactional load entry point plus the read-by-identifier
// lookups used during resolution and verification.
type PersistentStore interface {
	// BeginStudyLoad opens a transaction scoped to one study. It fails
	// with ErrStudyExists when the identifier is already present, unless
	// replace is true, in which case the existing study and all owned
	// records are deleted within the same transaction.
	BeginStudyLoad(ctx context.Context, studyID string, replace bool) (StudyTransaction, error)

	GetStudy(ctx context.Context, id string) (Study, bool, error)
	ListStudies(ctx context.Context) ([]Study, error)
	ListSubjects(ctx context.Context, studyID string) ([]Subject, error)
	ListSamples(ctx context.Context, studyID string) ([]Sample, error)
	ListPreparations(ctx context.Context, studyID string) ([]Preparation, error)
	ListSequenceVariants(ctx context.Context, studyID string) ([]SequenceVariant, error)
	ListCounts(ctx context.Context, studyID string) ([]Count, error)
	ListPublications(ctx context.Context, studyID string) ([]Publication, error)

	Close() error
}
