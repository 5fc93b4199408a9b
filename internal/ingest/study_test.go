package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBundleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func minimalBundle(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "1001")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeBundleFile(t, dir, "1001_study_info.txt",
		"study_title\tMoving pictures\nstudy_description\tDaily time series\nsource_url\thttps://example.org/1001\n")
	writeBundleFile(t, dir, "1001_sample_info.txt",
		"sample_name\thost_subject_id\ttime_point\thost_age\n"+
			"S2\tsub-1\t2\t30 years\n"+
			"S1\tsub-1\t1\t30 years\n")
	writeBundleFile(t, dir, "1001_prep_16S.txt",
		"sample_name\tcenter_name\tplatform\nS1\tCGS\tIllumina\n")
	writeBundleFile(t, dir, "counts.biom", `{
	  "format": "Biological Observation Matrix 1.0.0",
	  "matrix_type": "sparse",
	  "shape": [3, 2],
	  "rows": [
	    {"id": "OTU1", "metadata": {"taxonomy": ["k__Bacteria"]}},
	    {"id": "OTU2", "metadata": null},
	    {"id": "OTU3", "metadata": null}
	  ],
	  "columns": [{"id": "S1", "metadata": null}, {"id": "S2", "metadata": null}],
	  "data": [[0, 0, 2], [0, 1, 4], [1, 0, 1], [1, 1, 3], [2, 1, 8]]
	}`)
	writeBundleFile(t, dir, "pubs.xml",
		`<PubmedArticleSet><PubmedArticle><MedlineCitation><PMID>42</PMID>
		 <Article><ArticleTitle>T</ArticleTitle></Article>
		 </MedlineCitation></PubmedArticle></PubmedArticleSet>`)
	return dir
}

func TestDiscoverBundle(t *testing.T) {
	dir := minimalBundle(t)
	b, err := DiscoverBundle(dir)
	if err != nil {
		t.Fatalf("DiscoverBundle: %v", err)
	}
	if b.StudyID != "1001" {
		t.Fatalf("study id = %q", b.StudyID)
	}
	if len(b.SampleFiles) != 1 || len(b.PrepFiles) != 1 || len(b.CountFiles) != 1 || len(b.PubFiles) != 1 || len(b.StudyInfoFiles) != 1 {
		t.Fatalf("classification = %+v", b)
	}
}

func TestDiscoverBundleRequiresSampleSheet(t *testing.T) {
	dir := t.TempDir()
	writeBundleFile(t, dir, "counts.biom", "{}")
	if _, err := DiscoverBundle(dir); err == nil {
		t.Fatal("bundle without sample sheet must be rejected")
	}
}

func TestParseBundle(t *testing.T) {
	b, err := DiscoverBundle(minimalBundle(t))
	if err != nil {
		t.Fatalf("DiscoverBundle: %v", err)
	}
	agg, diags, err := NewParser().ParseBundle(b)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if agg.Study.ID != "1001" || agg.Study.Title != "Moving pictures" || agg.Study.SourceURL != "https://example.org/1001" {
		t.Fatalf("study = %+v", agg.Study)
	}
	if len(agg.Subjects) != 1 || len(agg.Samples) != 2 || len(agg.Preparations) != 1 {
		t.Fatalf("aggregate sizes = %d/%d/%d", len(agg.Subjects), len(agg.Samples), len(agg.Preparations))
	}
	if agg.Samples[0].ID != "S1" || agg.Samples[1].ID != "S2" {
		t.Fatalf("samples must follow timepoints: %s, %s", agg.Samples[0].ID, agg.Samples[1].ID)
	}
	if len(agg.Variants) != 3 || len(agg.Counts) != 5 {
		t.Fatalf("variants/counts = %d/%d", len(agg.Variants), len(agg.Counts))
	}
	if len(agg.Publications) != 1 || agg.Publications[0].PMID != "42" {
		t.Fatalf("publications = %+v", agg.Publications)
	}
}

func TestParseBundleDeduplicatesAcrossSheets(t *testing.T) {
	dir := minimalBundle(t)
	// A second sheet redefines S1 and must lose to the first.
	writeBundleFile(t, dir, "1001_sample_info_extra.txt",
		"sample_name\thost_subject_id\ttime_point\nS1\tsub-9\t7\n")
	b, err := DiscoverBundle(dir)
	if err != nil {
		t.Fatalf("DiscoverBundle: %v", err)
	}
	agg, diags, err := NewParser().ParseBundle(b)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if len(agg.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(agg.Samples))
	}
	s, ok := agg.FindSample("S1")
	if !ok || *s.SubjectID != "sub-1" {
		t.Fatalf("first sheet must win: %+v", s)
	}
	if len(diags) == 0 {
		t.Fatal("duplicate across sheets must be flagged")
	}
}
