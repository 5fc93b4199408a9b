package ingest

import (
	"regexp"

	"biomecore/internal/ingest/tabular"
	"biomecore/pkg/domain"
)

// Primer pairs arrive packed into one cell ("FWD:GTGYCAGCMGCCGCGGTAA;
// REV:GGACTACNVGGGTWTCTAAT"). Degenerate IUPAC bases are legal.
var (
	fwdPrimerRe = regexp.MustCompile(`FWD:\s*([ACGTURYKMSWBDHVN]+)`)
	revPrimerRe = regexp.MustCompile(`REV:\s*([ACGTURYKMSWBDHVN]+)`)
)

// PrepResolver accumulates preparation rows across any number of prep
// sheets and resolves each against the known samples. Sheets may arrive
// before the sample table that defines their samples, so unresolved rows
// are deferred and re-resolved exactly once when Finish is called, after
// every sample table has been parsed.
type PrepResolver struct {
	studyID string
	pending []pendingPrep
	preps   []domain.Preparation
	diags   domain.Diagnostics
}

type pendingPrep struct {
	file string
	row  int
	prep domain.Preparation
}

// NewPrepResolver starts collecting preparations for one study.
func NewPrepResolver(studyID string) *PrepResolver {
	return &PrepResolver{studyID: studyID}
}

// AddTable consumes one cleaned preparation sheet. Rows whose sample is
// already known resolve immediately; the rest are deferred.
func (r *PrepResolver) AddTable(table *tabular.CleanTable, knownSample func(string) bool) {
	for _, row := range table.Rows {
		prep := r.buildPrep(row)
		if knownSample(prep.SampleID) {
			r.preps = append(r.preps, prep)
			continue
		}
		r.pending = append(r.pending, pendingPrep{file: table.File, row: row.Index, prep: prep})
	}
}

// Finish retries the deferred rows once and rejects whatever still fails
// to resolve. It returns all resolved preparations plus the accumulated
// diagnostics.
func (r *PrepResolver) Finish(knownSample func(string) bool) ([]domain.Preparation, domain.Diagnostics) {
	for _, p := range r.pending {
		if knownSample(p.prep.SampleID) {
			r.preps = append(r.preps, p.prep)
			continue
		}
		r.diags.AddReferential(p.file, p.row, "sample_id", "preparation %q references unknown sample %q", p.prep.ID, p.prep.SampleID)
	}
	r.pending = nil
	return r.preps, r.diags
}

func (r *PrepResolver) buildPrep(row tabular.Row) domain.Preparation {
	prep := domain.Preparation{
		StudyID:           r.studyID,
		ID:                row.ID,
		SampleID:          row.ID,
		SeqCenter:         row.Text("seq_center"),
		SeqRunName:        row.Text("seq_run_name"),
		Platform:          row.Text("platform"),
		InstrumentModel:   row.Text("instrument_model"),
		TargetGene:        row.Text("target_gene"),
		TargetSubfragment: row.Text("target_subfragment"),
	}
	if id := row.Text("preparation_id"); id != "" {
		prep.ID = id
	}
	if t, ok := row.Time("seq_date"); ok {
		u := t.UTC()
		prep.SeqDate = &u
	}
	prep.FwdPrimer, prep.RevPrimer = splitPrimers(row.Text("primers"))
	return prep
}

// splitPrimers extracts the forward and reverse primer sequences from a
// packed primer cell. Either may be absent.
func splitPrimers(raw string) (fwd, rev string) {
	if m := fwdPrimerRe.FindStringSubmatch(raw); m != nil {
		fwd = m[1]
	}
	if m := revPrimerRe.FindStringSubmatch(raw); m != nil {
		rev = m[1]
	}
	return fwd, rev
}

// sampleSet builds the membership closure used for preparation and count
// resolution.
func sampleSet(samples []domain.Sample) func(string) bool {
	set := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		set[s.ID] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}
