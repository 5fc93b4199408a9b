// Package domain defines the persistent entities, value types, and
// diagnostics primitives shared by the biomecore ingestion pipeline.
package domain

import "time"

// EntityType identifies the type of record stored in the core schema.
type EntityType string

// Supported entity type identifiers used in diagnostics and persistence buckets.
const (
	// EntityStudy identifies the top-level study aggregate record.
	EntityStudy EntityType = "study"
	// EntitySubject identifies a study-scoped subject record.
	EntitySubject EntityType = "subject"
	// EntitySample identifies a sample record.
	EntitySample EntityType = "sample"
	// EntityPreparation identifies a sequencing preparation record.
	EntityPreparation EntityType = "preparation"
	// EntitySequenceVariant identifies an observed marker-gene sequence record.
	EntitySequenceVariant EntityType = "sequence_variant"
	// EntityCount identifies a (sample, variant, abundance) fact record.
	EntityCount EntityType = "count"
	// EntityPublication identifies a bibliographic record.
	EntityPublication EntityType = "publication"
)

// Sex enumerates subject sex values following ISO/IEC 5218 vocabulary.
type Sex string

// Canonical subject sex values stored by the schema.
const (
	SexNotKnown      Sex = "not known"
	SexMale          Sex = "male"
	SexFemale        Sex = "female"
	SexNotApplicable Sex = "not applicable"
)

// Study is the top-level aggregate corresponding to one source dataset.
// Its identifier must be unique across the corpus; deleting a study
// cascades to every owned record.
type Study struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceName  string `json:"source_name,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// Subject is a study-scoped host individual. All demographic attributes are
// optional; multiple samples may reference one subject (time series).
type Subject struct {
	StudyID     string     `json:"study_id"`
	ID          string     `json:"id"`
	Sex         Sex        `json:"sex,omitempty"`
	Country     string     `json:"country,omitempty"`
	Race        string     `json:"race,omitempty"`
	CSection    *bool      `json:"csection,omitempty"`
	Disease     string     `json:"disease,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// Sample is one collected specimen. Timepoint carries the declared
// collection offset used for time-series ordering even when absolute dates
// are anonymized; CollectedAt is set only when the source provides one.
type Sample struct {
	StudyID     string     `json:"study_id"`
	ID          string     `json:"id"`
	SubjectID   *string    `json:"subject_id,omitempty"`
	Timepoint   *int       `json:"timepoint,omitempty"`
	CollectedAt *time.Time `json:"collected_at,omitempty"`

	Age       *Quantity `json:"age,omitempty"`
	Height    *Quantity `json:"height,omitempty"`
	Weight    *Quantity `json:"weight,omitempty"`
	BMI       *float64  `json:"bmi,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Elevation *float64  `json:"elevation,omitempty"`

	BodySite    string `json:"body_site,omitempty"`
	BodyHabitat string `json:"body_habitat,omitempty"`
	BodyProduct string `json:"body_product,omitempty"`
	EnvBiome    string `json:"env_biome,omitempty"`
	EnvFeature  string `json:"env_feature,omitempty"`

	// Metadata holds remaining normalized key -> value pairs that do not
	// map to a dedicated column.
	Metadata map[string]Value `json:"metadata,omitempty"`
}

// Preparation describes how one sample was processed and sequenced to
// produce count data. SampleID must resolve to an existing sample at load
// time. ArtifactKey references the archived raw count artifact in the blob
// store, when one was captured.
type Preparation struct {
	StudyID           string     `json:"study_id"`
	ID                string     `json:"id"`
	SampleID          string     `json:"sample_id"`
	SeqCenter         string     `json:"seq_center,omitempty"`
	SeqRunName        string     `json:"seq_run_name,omitempty"`
	SeqDate           *time.Time `json:"seq_date,omitempty"`
	Platform          string     `json:"platform,omitempty"`
	InstrumentModel   string     `json:"instrument_model,omitempty"`
	TargetGene        string     `json:"target_gene,omitempty"`
	TargetSubfragment string     `json:"target_subfragment,omitempty"`
	FwdPrimer         string     `json:"fwd_primer,omitempty"`
	RevPrimer         string     `json:"rev_primer,omitempty"`
	ArtifactKey       string     `json:"artifact_key,omitempty"`
}

// SequenceVariant is a distinct observed marker-gene sequence (ASV/OTU).
// Sequence is set when the observation identifier is itself a nucleotide
// string; Lineage is nil when no taxonomy was assigned.
type SequenceVariant struct {
	StudyID  string   `json:"study_id"`
	ID       string   `json:"id"`
	Sequence string   `json:"sequence,omitempty"`
	Lineage  *Lineage `json:"lineage,omitempty"`
}

// Count records the observed abundance of one sequence variant within one
// sample. Zero abundances are never materialized; the (SampleID, VariantID)
// pair is unique within a study.
type Count struct {
	StudyID   string `json:"study_id"`
	SampleID  string `json:"sample_id"`
	VariantID string `json:"variant_id"`
	Abundance uint64 `json:"abundance"`
}

// Author is one ordered entry of a publication author list.
type Author struct {
	FirstInitial   string   `json:"first_initial,omitempty"`
	FirstName      string   `json:"first_name,omitempty"`
	MiddleInitials []string `json:"middle_initials,omitempty"`
	LastName       string   `json:"last_name"`
}

// Publication is one bibliographic record linked to a study.
type Publication struct {
	StudyID           string   `json:"study_id"`
	PMID              string   `json:"pmid"`
	Title             string   `json:"title,omitempty"`
	Authors           []Author `json:"authors,omitempty"`
	CollectiveAuthors []string `json:"collective_authors,omitempty"`
	Journal           string   `json:"journal,omitempty"`
	JournalISO        string   `json:"journal_iso,omitempty"`
	Volume            string   `json:"volume,omitempty"`
	Issue             string   `json:"issue,omitempty"`
	Pages             string   `json:"pages,omitempty"`
	DOI               string   `json:"doi,omitempty"`
	Year              *int     `json:"year,omitempty"`

	// Notes retains non-fatal parse problems for audit. A malformed record
	// still yields a publication with whatever fields parsed.
	Notes []string `json:"notes,omitempty"`
}

// StudyAggregate is the fully parsed in-memory object graph for one study,
// assembled by the parsers and persisted atomically by the loader.
type StudyAggregate struct {
	Study        Study             `json:"study"`
	Subjects     []Subject         `json:"subjects"`
	Samples      []Sample          `json:"samples"`
	Preparations []Preparation     `json:"preparations"`
	Variants     []SequenceVariant `json:"variants"`
	Counts       []Count           `json:"counts"`
	Publications []Publication     `json:"publications"`
}

// FindSample returns the sample with the given identifier.
func (a *StudyAggregate) FindSample(id string) (Sample, bool) {
	for _, s := range a.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// FindSubject returns the subject with the given identifier.
func (a *StudyAggregate) FindSubject(id string) (Subject, bool) {
	for _, s := range a.Subjects {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// FindVariant returns the sequence variant with the given identifier.
func (a *StudyAggregate) FindVariant(id string) (SequenceVariant, bool) {
	for _, v := range a.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return SequenceVariant{}, false
}
