// Package sqlstore implements the persistent store over database/sql. The
// SQLite and Postgres packages supply an open connection and a dialect;
// everything else, the DDL application, the transactional study load, and
// the reads, is shared here so the two backends cannot drift apart.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"biomecore/internal/schema"
	"biomecore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Dialect selects placeholder style.
type Dialect int

// Supported dialects.
const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) rebind(query string) string {
	if d == DialectPostgres {
		return schema.Rebind(query)
	}
	return query
}

// Store persists studies as relational rows.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New applies the schema DDL and wraps the connection.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range schema.Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

// BeginStudyLoad opens a database transaction scoped to one study. With
// replace, the existing study is deleted inside the transaction so a later
// rollback restores it untouched.
func (s *Store) BeginStudyLoad(ctx context.Context, studyID string, replace bool) (domain.StudyTransaction, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT EXISTS (SELECT 1 FROM studies WHERE id = ?)`), studyID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check study %q: %w", studyID, err)
	}
	if exists && !replace {
		return nil, fmt.Errorf("study %q: %w", studyID, domain.ErrStudyExists)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin study load: %w", err)
	}
	if replace {
		if _, err := dbtx.ExecContext(ctx, s.dialect.rebind(schema.DeleteStudy), studyID); err != nil {
			_ = dbtx.Rollback()
			return nil, fmt.Errorf("replace study %q: %w", studyID, err)
		}
	}
	return newTx(ctx, dbtx, s.dialect, studyID), nil
}

// GetStudy returns one study row.
func (s *Store) GetStudy(ctx context.Context, id string) (domain.Study, bool, error) {
	var study domain.Study
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, title, description, source_name, source_type, source_url FROM studies WHERE id = ?`), id).
		Scan(&study.ID, &study.Title, &study.Description, &study.SourceName, &study.SourceType, &study.SourceURL)
	if err == sql.ErrNoRows {
		return domain.Study{}, false, nil
	}
	if err != nil {
		return domain.Study{}, false, fmt.Errorf("get study: %w", err)
	}
	return study, true, nil
}

// ListStudies returns every study row.
func (s *Store) ListStudies(ctx context.Context) ([]domain.Study, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, source_name, source_type, source_url FROM studies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Study
	for rows.Next() {
		var st domain.Study
		if err := rows.Scan(&st.ID, &st.Title, &st.Description, &st.SourceName, &st.SourceType, &st.SourceURL); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListSubjects returns the subjects of one study.
func (s *Store) ListSubjects(ctx context.Context, studyID string) ([]domain.Subject, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, id, sex, country, race, csection, disease, date_of_birth
		 FROM subjects WHERE study_id = ? ORDER BY id`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Subject
	for rows.Next() {
		var (
			sub      domain.Subject
			sex      string
			csection sql.NullBool
			dob      sql.NullTime
		)
		if err := rows.Scan(&sub.StudyID, &sub.ID, &sex, &sub.Country, &sub.Race, &csection, &sub.Disease, &dob); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		sub.Sex = domain.Sex(sex)
		if csection.Valid {
			sub.CSection = &csection.Bool
		}
		if dob.Valid {
			t := dob.Time.UTC()
			sub.DateOfBirth = &t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ListSamples returns the samples of one study ordered by timepoint, then
// identifier, matching the loader's time-series ordering.
func (s *Store) ListSamples(ctx context.Context, studyID string) ([]domain.Sample, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, id, subject_id, timepoint, collected_at,
		        age_years, height_m, weight_kg, bmi, latitude, longitude, elevation,
		        body_site, body_habitat, body_product, env_biome, env_feature, metadata
		 FROM samples WHERE study_id = ?
		 ORDER BY CASE WHEN timepoint IS NULL THEN 1 ELSE 0 END, timepoint, id`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Sample
	for rows.Next() {
		var (
			sm          domain.Sample
			subjectID   sql.NullString
			timepoint   sql.NullInt64
			collectedAt sql.NullTime
			age, height, weight, bmi, lat, lon, elev sql.NullFloat64
			metadata    []byte
		)
		if err := rows.Scan(&sm.StudyID, &sm.ID, &subjectID, &timepoint, &collectedAt,
			&age, &height, &weight, &bmi, &lat, &lon, &elev,
			&sm.BodySite, &sm.BodyHabitat, &sm.BodyProduct, &sm.EnvBiome, &sm.EnvFeature, &metadata); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if subjectID.Valid {
			sm.SubjectID = &subjectID.String
		}
		if timepoint.Valid {
			tp := int(timepoint.Int64)
			sm.Timepoint = &tp
		}
		if collectedAt.Valid {
			t := collectedAt.Time.UTC()
			sm.CollectedAt = &t
		}
		sm.Age = quantityFrom(age, "years")
		sm.Height = quantityFrom(height, "m")
		sm.Weight = quantityFrom(weight, "kg")
		sm.BMI = floatFrom(bmi)
		sm.Latitude = floatFrom(lat)
		sm.Longitude = floatFrom(lon)
		sm.Elevation = floatFrom(elev)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &sm.Metadata); err != nil {
				return nil, fmt.Errorf("decode sample metadata: %w", err)
			}
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// ListPreparations returns the preparations of one study.
func (s *Store) ListPreparations(ctx context.Context, studyID string) ([]domain.Preparation, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, id, sample_id, seq_center, seq_run_name, seq_date, platform,
		        instrument_model, target_gene, target_subfragment, fwd_primer, rev_primer, artifact_key
		 FROM preparations WHERE study_id = ? ORDER BY id`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list preparations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Preparation
	for rows.Next() {
		var (
			p       domain.Preparation
			seqDate sql.NullTime
		)
		if err := rows.Scan(&p.StudyID, &p.ID, &p.SampleID, &p.SeqCenter, &p.SeqRunName, &seqDate,
			&p.Platform, &p.InstrumentModel, &p.TargetGene, &p.TargetSubfragment,
			&p.FwdPrimer, &p.RevPrimer, &p.ArtifactKey); err != nil {
			return nil, fmt.Errorf("scan preparation: %w", err)
		}
		if seqDate.Valid {
			t := seqDate.Time.UTC()
			p.SeqDate = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSequenceVariants returns the sequence variants of one study.
func (s *Store) ListSequenceVariants(ctx context.Context, studyID string) ([]domain.SequenceVariant, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, id, sequence, kingdom, phylum, class, "order", family, genus, species
		 FROM sequence_variants WHERE study_id = ? ORDER BY id`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list sequence variants: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.SequenceVariant
	for rows.Next() {
		var (
			v     domain.SequenceVariant
			ranks [domain.RankCount]sql.NullString
		)
		if err := rows.Scan(&v.StudyID, &v.ID, &v.Sequence,
			&ranks[0], &ranks[1], &ranks[2], &ranks[3], &ranks[4], &ranks[5], &ranks[6]); err != nil {
			return nil, fmt.Errorf("scan sequence variant: %w", err)
		}
		v.Lineage = lineageFrom(ranks)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListCounts returns the counts of one study.
func (s *Store) ListCounts(ctx context.Context, studyID string) ([]domain.Count, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, sample_id, variant_id, abundance
		 FROM counts WHERE study_id = ? ORDER BY sample_id, variant_id`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Count
	for rows.Next() {
		var c domain.Count
		if err := rows.Scan(&c.StudyID, &c.SampleID, &c.VariantID, &c.Abundance); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListPublications returns the publications of one study.
func (s *Store) ListPublications(ctx context.Context, studyID string) ([]domain.Publication, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT study_id, pmid, title, authors, journal, journal_iso, volume, issue, pages, doi, year, notes
		 FROM publications WHERE study_id = ? ORDER BY pmid`), studyID)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Publication
	for rows.Next() {
		var (
			p       domain.Publication
			authors []byte
			notes   []byte
			year    sql.NullInt64
		)
		if err := rows.Scan(&p.StudyID, &p.PMID, &p.Title, &authors, &p.Journal, &p.JournalISO,
			&p.Volume, &p.Issue, &p.Pages, &p.DOI, &year, &notes); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		if err := decodeAuthors(authors, &p); err != nil {
			return nil, err
		}
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &p.Notes); err != nil {
				return nil, fmt.Errorf("decode publication notes: %w", err)
			}
		}
		if year.Valid {
			y := int(year.Int64)
			p.Year = &y
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for backend-specific setup and tests.
func (s *Store) DB() *sql.DB { return s.db }

func quantityFrom(v sql.NullFloat64, unit string) *domain.Quantity {
	if !v.Valid {
		return nil
	}
	return &domain.Quantity{Value: v.Float64, Unit: unit, Normalized: true}
}

func floatFrom(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func lineageFrom(ranks [domain.RankCount]sql.NullString) *domain.Lineage {
	any := false
	l := &domain.Lineage{}
	for i, r := range ranks {
		if r.Valid {
			v := r.String
			l.Ranks[i] = &v
			any = true
		}
	}
	if !any {
		return nil
	}
	return l
}
