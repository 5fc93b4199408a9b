package ingest

import (
	"strings"
	"testing"

	"biomecore/internal/ingest/tabular"
	"biomecore/pkg/domain"
)

func cleanPrep(t *testing.T, sheet string) *tabular.CleanTable {
	t.Helper()
	table, diags, err := tabular.PrepVocabulary().Clean("prep.txt", strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("cleaner diagnostics: %v", diags)
	}
	return table
}

func TestPrepResolverResolvesAgainstSamples(t *testing.T) {
	sheet := "sample_name\tcenter_name\tplatform\ttarget_gene\tpcr_primers\n" +
		"S1\tCGS\tIllumina\t16S rRNA\tFWD:GTGYCAGCMGCCGCGGTAA; REV:GGACTACNVGGGTWTCTAAT\n" +
		"S2\tCGS\tIllumina\t16S rRNA\t\n"
	known := sampleSet([]domain.Sample{{ID: "S1"}, {ID: "S2"}})

	r := NewPrepResolver("study-1")
	r.AddTable(cleanPrep(t, sheet), known)
	preps, diags := r.Finish(known)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(preps) != 2 {
		t.Fatalf("preps = %d, want 2", len(preps))
	}
	p := preps[0]
	if p.SampleID != "S1" || p.SeqCenter != "CGS" || p.TargetGene != "16s rrna" {
		t.Fatalf("preps[0] = %+v", p)
	}
	if p.FwdPrimer != "GTGYCAGCMGCCGCGGTAA" || p.RevPrimer != "GGACTACNVGGGTWTCTAAT" {
		t.Fatalf("primers = %q / %q", p.FwdPrimer, p.RevPrimer)
	}
}

func TestPrepResolverDefersUntilFinish(t *testing.T) {
	sheet := "sample_name\tplatform\nS9\tIllumina\n"
	table := cleanPrep(t, sheet)

	// The prep sheet arrives before the sample sheet that defines S9.
	samples := []domain.Sample{}
	known := func(id string) bool {
		for _, s := range samples {
			if s.ID == id {
				return true
			}
		}
		return false
	}
	r := NewPrepResolver("study-1")
	r.AddTable(table, known)
	samples = append(samples, domain.Sample{ID: "S9"})
	preps, diags := r.Finish(known)
	if len(diags) != 0 {
		t.Fatalf("deferred row must resolve at Finish: %v", diags)
	}
	if len(preps) != 1 || preps[0].SampleID != "S9" {
		t.Fatalf("preps = %+v", preps)
	}
}

func TestPrepResolverRejectsUnresolvedAfterRetry(t *testing.T) {
	sheet := "sample_name\tplatform\nS1\tIllumina\nGHOST\tIllumina\n"
	known := sampleSet([]domain.Sample{{ID: "S1"}})

	r := NewPrepResolver("study-1")
	r.AddTable(cleanPrep(t, sheet), known)
	preps, diags := r.Finish(known)
	if len(preps) != 1 || preps[0].SampleID != "S1" {
		t.Fatalf("preps = %+v", preps)
	}
	refs := diags.Kind(domain.DiagReferential)
	if len(refs) != 1 || refs[0].Row != 2 {
		t.Fatalf("want one referential diagnostic at row 2, got %v", diags)
	}
}

func TestSplitPrimers(t *testing.T) {
	fwd, rev := splitPrimers("FWD:ACGT; REV:TTGG")
	if fwd != "ACGT" || rev != "TTGG" {
		t.Fatalf("got %q / %q", fwd, rev)
	}
	fwd, rev = splitPrimers("just some text")
	if fwd != "" || rev != "" {
		t.Fatalf("non-primer text must yield empty pair, got %q / %q", fwd, rev)
	}
}
