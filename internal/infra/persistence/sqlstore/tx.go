package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"biomecore/internal/schema"
	"biomecore/pkg/domain"
)

// tx wraps one database transaction. Identifier sets are tracked here so a
// dangling reference surfaces as a typed IntegrityError at the offending
// insert; the schema's foreign keys are the backstop, not the interface.
type tx struct {
	ctx     context.Context
	dbtx    *sql.Tx
	dialect Dialect
	studyID string
	done    bool

	hasStudy   bool
	subjectIDs map[string]struct{}
	sampleIDs  map[string]struct{}
	variantIDs map[string]struct{}
}

var _ domain.StudyTransaction = (*tx)(nil)

func newTx(ctx context.Context, dbtx *sql.Tx, dialect Dialect, studyID string) *tx {
	return &tx{
		ctx:        ctx,
		dbtx:       dbtx,
		dialect:    dialect,
		studyID:    studyID,
		subjectIDs: make(map[string]struct{}),
		sampleIDs:  make(map[string]struct{}),
		variantIDs: make(map[string]struct{}),
	}
}

func (t *tx) exec(query string, args ...any) error {
	_, err := t.dbtx.ExecContext(t.ctx, t.dialect.rebind(query), args...)
	return err
}

func (t *tx) InsertStudy(study domain.Study) error {
	if err := t.scope(study.ID); err != nil {
		return err
	}
	if t.hasStudy {
		return fmt.Errorf("study %q already inserted in this transaction", study.ID)
	}
	if err := t.exec(schema.InsertStudy,
		study.ID, study.Title, study.Description, study.SourceName, study.SourceType, study.SourceURL); err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	t.hasStudy = true
	return nil
}

func (t *tx) InsertSubject(sub domain.Subject) error {
	if err := t.entityScope(sub.StudyID); err != nil {
		return err
	}
	if err := t.exec(schema.InsertSubject,
		sub.StudyID, sub.ID, string(sub.Sex), sub.Country, sub.Race,
		nullBool(sub.CSection), sub.Disease, nullTime(sub.DateOfBirth)); err != nil {
		return fmt.Errorf("insert subject %q: %w", sub.ID, err)
	}
	t.subjectIDs[sub.ID] = struct{}{}
	return nil
}

func (t *tx) InsertSample(sm domain.Sample) error {
	if err := t.entityScope(sm.StudyID); err != nil {
		return err
	}
	if sm.SubjectID != nil {
		if _, ok := t.subjectIDs[*sm.SubjectID]; !ok {
			return &domain.IntegrityError{
				Entity: domain.EntitySample, ID: sm.ID,
				Ref: domain.EntitySubject, RefID: *sm.SubjectID,
			}
		}
	}
	metadata := []byte("{}")
	if len(sm.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(sm.Metadata); err != nil {
			return fmt.Errorf("encode sample metadata: %w", err)
		}
	}
	if err := t.exec(schema.InsertSample,
		sm.StudyID, sm.ID, nullString(sm.SubjectID), nullInt(sm.Timepoint), nullTime(sm.CollectedAt),
		nullQuantity(sm.Age), nullQuantity(sm.Height), nullQuantity(sm.Weight),
		nullFloat(sm.BMI), nullFloat(sm.Latitude), nullFloat(sm.Longitude), nullFloat(sm.Elevation),
		sm.BodySite, sm.BodyHabitat, sm.BodyProduct, sm.EnvBiome, sm.EnvFeature, metadata); err != nil {
		return fmt.Errorf("insert sample %q: %w", sm.ID, err)
	}
	t.sampleIDs[sm.ID] = struct{}{}
	return nil
}

func (t *tx) InsertPreparation(p domain.Preparation) error {
	if err := t.entityScope(p.StudyID); err != nil {
		return err
	}
	if _, ok := t.sampleIDs[p.SampleID]; !ok {
		return &domain.IntegrityError{
			Entity: domain.EntityPreparation, ID: p.ID,
			Ref: domain.EntitySample, RefID: p.SampleID,
		}
	}
	if err := t.exec(schema.InsertPreparation,
		p.StudyID, p.ID, p.SampleID, p.SeqCenter, p.SeqRunName, nullTime(p.SeqDate),
		p.Platform, p.InstrumentModel, p.TargetGene, p.TargetSubfragment,
		p.FwdPrimer, p.RevPrimer, p.ArtifactKey); err != nil {
		return fmt.Errorf("insert preparation %q: %w", p.ID, err)
	}
	return nil
}

func (t *tx) InsertSequenceVariant(v domain.SequenceVariant) error {
	if err := t.entityScope(v.StudyID); err != nil {
		return err
	}
	args := []any{v.StudyID, v.ID, v.Sequence}
	for i := 0; i < domain.RankCount; i++ {
		if v.Lineage == nil || v.Lineage.Ranks[i] == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, *v.Lineage.Ranks[i])
	}
	if err := t.exec(schema.InsertSequenceVariant, args...); err != nil {
		return fmt.Errorf("insert sequence variant %q: %w", v.ID, err)
	}
	t.variantIDs[v.ID] = struct{}{}
	return nil
}

func (t *tx) InsertCount(c domain.Count) error {
	if err := t.entityScope(c.StudyID); err != nil {
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
	if err := t.exec(schema.InsertCount, c.StudyID, c.SampleID, c.VariantID, int64(c.Abundance)); err != nil {
		return fmt.Errorf("insert count (%s, %s): %w", c.SampleID, c.VariantID, err)
	}
	return nil
}

func (t *tx) InsertPublication(p domain.Publication) error {
	if err := t.entityScope(p.StudyID); err != nil {
		return err
	}
	authors, err := encodeAuthors(p)
	if err != nil {
		return err
	}
	notes := []byte("[]")
	if len(p.Notes) > 0 {
		if notes, err = json.Marshal(p.Notes); err != nil {
			return fmt.Errorf("encode publication notes: %w", err)
		}
	}
	if err := t.exec(schema.InsertPublication,
		p.StudyID, p.PMID, p.Title, authors, p.Journal, p.JournalISO,
		p.Volume, p.Issue, p.Pages, p.DOI, nullInt(p.Year), notes); err != nil {
		return fmt.Errorf("insert publication %q: %w", p.PMID, err)
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction for study %q already finished", t.studyID)
	}
	if err := ctx.Err(); err != nil {
		_ = t.dbtx.Rollback()
		t.done = true
		return err
	}
	if !t.hasStudy {
		_ = t.dbtx.Rollback()
		t.done = true
		return fmt.Errorf("commit without study record")
	}
	t.done = true
	if err := t.dbtx.Commit(); err != nil {
		return fmt.Errorf("commit study %q: %w", t.studyID, err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.dbtx.Rollback(); err != nil {
		return fmt.Errorf("rollback study %q: %w", t.studyID, err)
	}
	return nil
}

func (t *tx) scope(studyID string) error {
	if t.done {
		return fmt.Errorf("transaction for study %q already finished", t.studyID)
	}
	if studyID != t.studyID {
		return fmt.Errorf("entity study %q does not match transaction scope %q", studyID, t.studyID)
	}
	return nil
}

func (t *tx) entityScope(studyID string) error {
	if err := t.scope(studyID); err != nil {
		return err
	}
	if !t.hasStudy {
		return fmt.Errorf("study record must be inserted first")
	}
	return nil
}

// authorsEnvelope keeps personal and collective authors in one JSON column.
type authorsEnvelope struct {
	Personal   []domain.Author `json:"personal,omitempty"`
	Collective []string        `json:"collective,omitempty"`
}

func encodeAuthors(p domain.Publication) ([]byte, error) {
	if len(p.Authors) == 0 && len(p.CollectiveAuthors) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(authorsEnvelope{Personal: p.Authors, Collective: p.CollectiveAuthors})
	if err != nil {
		return nil, fmt.Errorf("encode publication authors: %w", err)
	}
	return raw, nil
}

func decodeAuthors(raw []byte, p *domain.Publication) error {
	if len(raw) == 0 {
		return nil
	}
	var env authorsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode publication authors: %w", err)
	}
	p.Authors = env.Personal
	p.CollectiveAuthors = env.Collective
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullQuantity stores the canonical magnitude; quantities that never
// normalized have no comparable magnitude and persist as null (the raw
// string stays in the sample metadata mapping).
func nullQuantity(q *domain.Quantity) any {
	if q == nil || !q.Normalized {
		return nil
	}
	return q.Value
}
