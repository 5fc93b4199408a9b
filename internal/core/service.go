package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"biomecore/internal/blob"
	"biomecore/internal/ingest"
	"biomecore/pkg/domain"
)

// Service is the ingestion facade: it parses study bundles, archives their
// raw count artifacts, and persists each study atomically.
type Service struct {
	store   domain.PersistentStore
	parser  *ingest.Parser
	blobs   blob.Store
	logger  *zap.Logger
	metrics MetricsRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithBlobStore enables raw artifact archival.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithLogger replaces the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics replaces the default no-op recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithParser replaces the default parser, e.g. to use custom vocabularies.
func WithParser(p *ingest.Parser) Option {
	return func(s *Service) {
		if p != nil {
			s.parser = p
		}
	}
}

// NewService constructs a service over the given store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		parser:  ingest.NewParser(),
		logger:  zap.NewNop(),
		metrics: NopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// LoadSummary reports what one study load persisted, plus every diagnostic
// accumulated while parsing it.
type LoadSummary struct {
	StudyID      string             `json:"study_id"`
	Subjects     int                `json:"subjects"`
	Samples      int                `json:"samples"`
	Preparations int                `json:"preparations"`
	Variants     int                `json:"variants"`
	Counts       int                `json:"counts"`
	Publications int                `json:"publications"`
	ArtifactKeys []string           `json:"artifact_keys,omitempty"`
	Diagnostics  domain.Diagnostics `json:"diagnostics,omitempty"`
}

func summarize(agg *domain.StudyAggregate) *LoadSummary {
	return &LoadSummary{
		StudyID:      agg.Study.ID,
		Subjects:     len(agg.Subjects),
		Samples:      len(agg.Samples),
		Preparations: len(agg.Preparations),
		Variants:     len(agg.Variants),
		Counts:       len(agg.Counts),
		Publications: len(agg.Publications),
	}
}

// LoadStudy persists a parsed aggregate, failing with
// domain.ErrStudyExists when the study is already loaded.
func (s *Service) LoadStudy(ctx context.Context, agg *domain.StudyAggregate) error {
	return s.observed(ctx, "load_study", func() error {
		return s.loadAggregate(ctx, agg, false)
	})
}

// ReplaceStudy persists a parsed aggregate, deleting any previously loaded
// study with the same identifier in the same transaction.
func (s *Service) ReplaceStudy(ctx context.Context, agg *domain.StudyAggregate) error {
	return s.observed(ctx, "replace_study", func() error {
		return s.loadAggregate(ctx, agg, true)
	})
}

// IngestStudy runs the whole pipeline for one study directory: discover
// the bundle, parse it, archive count artifacts when an archive is
// configured, and load the aggregate atomically.
func (s *Service) IngestStudy(ctx context.Context, dir string, replace bool) (*LoadSummary, error) {
	var summary *LoadSummary
	err := s.observed(ctx, "ingest_study", func() error {
		bundle, err := ingest.DiscoverBundle(dir)
		if err != nil {
			return err
		}
		agg, diags, err := s.parser.ParseBundle(bundle)
		if err != nil {
			return fmt.Errorf("parse study %s: %w", bundle.StudyID, err)
		}

		var keys []string
		if s.blobs != nil {
			keys, err = s.archiveArtifacts(ctx, bundle, agg)
			if err != nil {
				return fmt.Errorf("archive study %s: %w", bundle.StudyID, err)
			}
		}
		if err := s.loadAggregate(ctx, agg, replace); err != nil {
			return err
		}

		summary = summarize(agg)
		summary.ArtifactKeys = keys
		summary.Diagnostics = diags
		s.logger.Info("study loaded",
			zap.String("study_id", agg.Study.ID),
			zap.Int("samples", summary.Samples),
			zap.Int("counts", summary.Counts),
			zap.Int("diagnostics", len(diags)))
		return nil
	})
	return summary, err
}

func (s *Service) observed(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}

// loadAggregate persists one study as a single transaction. Insert order
// follows the reference direction of the schema so the transaction can
// validate each reference as it arrives.
func (s *Service) loadAggregate(ctx context.Context, agg *domain.StudyAggregate, replace bool) error {
	if agg == nil || agg.Study.ID == "" {
		return errors.New("load study: empty aggregate")
	}
	tx, err := s.store.BeginStudyLoad(ctx, agg.Study.ID, replace)
	if err != nil {
		return fmt.Errorf("load study %s: %w", agg.Study.ID, err)
	}
	err = func() error {
		if err := tx.InsertStudy(agg.Study); err != nil {
			return err
		}
		for _, sub := range agg.Subjects {
			if err := tx.InsertSubject(sub); err != nil {
				return err
			}
		}
		for _, sm := range agg.Samples {
			if err := tx.InsertSample(sm); err != nil {
				return err
			}
		}
		for _, p := range agg.Preparations {
			if err := tx.InsertPreparation(p); err != nil {
				return err
			}
		}
		for _, v := range agg.Variants {
			if err := tx.InsertSequenceVariant(v); err != nil {
				return err
			}
		}
		for _, c := range agg.Counts {
			if err := tx.InsertCount(c); err != nil {
				return err
			}
		}
		for _, p := range agg.Publications {
			if err := tx.InsertPublication(p); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("load study %s: %w", agg.Study.ID, err)
	}
	return nil
}

// archiveArtifacts stores each raw count artifact under
// studies/<study>/<file> and links preparations to their artifact key. A
// key that already exists is reused: archived artifacts are immutable, so
// a replace run against the same bytes is a no-op.
func (s *Service) archiveArtifacts(ctx context.Context, b *ingest.Bundle, agg *domain.StudyAggregate) ([]string, error) {
	keys := make([]string, 0, len(b.CountFiles))
	for _, path := range b.CountFiles {
		key := "studies/" + agg.Study.ID + "/" + filepath.Base(path)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		_, err = s.blobs.Put(ctx, key, f, blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"study_id": agg.Study.ID},
		})
		_ = f.Close()
		if errors.Is(err, blob.ErrExists) {
			s.logger.Debug("artifact already archived", zap.String("key", key))
		} else if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	switch {
	case len(keys) == 1:
		for i := range agg.Preparations {
			agg.Preparations[i].ArtifactKey = keys[0]
		}
	case len(keys) > 1:
		// Multiple artifacts: link by run name prefix, leave unmatched
		// preparations unlinked.
		for i, prep := range agg.Preparations {
			if prep.SeqRunName == "" {
				continue
			}
			for j, path := range b.CountFiles {
				if strings.HasPrefix(filepath.Base(path), prep.SeqRunName) {
					agg.Preparations[i].ArtifactKey = keys[j]
					break
				}
			}
		}
	}
	return keys, nil
}
