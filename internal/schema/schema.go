// Package schema carries the relational DDL and insert statements shared by
// the SQLite and Postgres stores. Statements are written with '?'
// placeholders; Rebind rewrites them to the $n form pgx expects.
package schema

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed ddl.sql
var ddl string

// Statements splits the embedded DDL into individually executable
// statements, skipping comments and blank trailers.
func Statements() []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		s := strings.TrimSpace(strings.Join(lines, "\n"))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Insert statements, one per entity, in loader order.
const (
	InsertStudy = `INSERT INTO studies (id, title, description, source_name, source_type, source_url)
		VALUES (?, ?, ?, ?, ?, ?)`

	InsertSubject = `INSERT INTO subjects (study_id, id, sex, country, race, csection, disease, date_of_birth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	InsertSample = `INSERT INTO samples (study_id, id, subject_id, timepoint, collected_at,
			age_years, height_m, weight_kg, bmi, latitude, longitude, elevation,
			body_site, body_habitat, body_product, env_biome, env_feature, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	InsertPreparation = `INSERT INTO preparations (study_id, id, sample_id, seq_center, seq_run_name,
			seq_date, platform, instrument_model, target_gene, target_subfragment,
			fwd_primer, rev_primer, artifact_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	InsertSequenceVariant = `INSERT INTO sequence_variants (study_id, id, sequence,
			kingdom, phylum, class, "order", family, genus, species)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	InsertCount = `INSERT INTO counts (study_id, sample_id, variant_id, abundance)
		VALUES (?, ?, ?, ?)`

	InsertPublication = `INSERT INTO publications (study_id, pmid, title, authors, journal,
			journal_iso, volume, issue, pages, doi, year, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	DeleteStudy = `DELETE FROM studies WHERE id = ?`
)

// Rebind rewrites '?' placeholders into the ordinal $n form. Quoted text in
// our statements never contains '?', so a plain scan suffices.
func Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
