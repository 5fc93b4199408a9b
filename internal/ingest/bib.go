package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"biomecore/pkg/domain"
)

// PubMed efetch XML shapes, limited to the fields the schema keeps.
type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title   string `xml:"ArticleTitle"`
			Journal struct {
				Title      string `xml:"Title"`
				ISO        string `xml:"ISOAbbreviation"`
				Issue      struct {
					Volume  string `xml:"Volume"`
					Issue   string `xml:"Issue"`
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Pagination struct {
				MedlinePgn string `xml:"MedlinePgn"`
			} `xml:"Pagination"`
			ArticleDate struct {
				Year string `xml:"Year"`
			} `xml:"ArticleDate"`
			AuthorList struct {
				Authors []pubmedAuthor `xml:"Author"`
			} `xml:"AuthorList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	Data struct {
		ArticleIDs []struct {
			Type string `xml:"IdType,attr"`
			ID   string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

// medlineYearRe pulls the year out of a free-text MedlineDate such as
// "2010 Nov-Dec" when the structured Year element is absent.
var medlineYearRe = regexp.MustCompile(`\d{4}`)

// ParsePublications decodes a PubMed article-set XML document into
// publications for one study. A document that is not well-formed XML is a
// FormatError; a record with missing or malformed fields still yields a
// publication carrying whatever parsed, with the problems retained in its
// Notes. Records without a PMID are rejected with a diagnostic since the
// identifier is the publication key.
func ParsePublications(studyID, file string, r io.Reader) ([]domain.Publication, domain.Diagnostics, error) {
	var set pubmedArticleSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, nil, &domain.FormatError{File: file, Reason: fmt.Sprintf("malformed XML: %v", err)}
	}

	var (
		pubs  []domain.Publication
		diags domain.Diagnostics
	)
	for i, art := range set.Articles {
		pmid := strings.TrimSpace(art.Citation.PMID)
		if pmid == "" {
			diags.AddRow(file, i+1, "PMID", "article record without PMID")
			continue
		}
		a := art.Citation.Article
		pub := domain.Publication{
			StudyID:    studyID,
			PMID:       pmid,
			Title:      strings.TrimSpace(a.Title),
			Journal:    strings.TrimSpace(a.Journal.Title),
			JournalISO: strings.TrimSpace(a.Journal.ISO),
			Volume:     strings.TrimSpace(a.Journal.Issue.Volume),
			Issue:      strings.TrimSpace(a.Journal.Issue.Issue),
			Pages:      strings.TrimSpace(a.Pagination.MedlinePgn),
		}
		if pub.Title == "" {
			pub.Notes = append(pub.Notes, "missing article title")
		}
		pub.Year = pubYear(a.Journal.Issue.PubDate.Year, a.Journal.Issue.PubDate.MedlineDate, a.ArticleDate.Year, &pub)
		for _, author := range a.AuthorList.Authors {
			if author.CollectiveName != "" {
				pub.CollectiveAuthors = append(pub.CollectiveAuthors, strings.TrimSpace(author.CollectiveName))
				continue
			}
			if author.LastName == "" {
				pub.Notes = append(pub.Notes, "author entry without last name skipped")
				continue
			}
			pub.Authors = append(pub.Authors, newAuthor(author))
		}
		for _, id := range art.Data.ArticleIDs {
			if strings.EqualFold(id.Type, "doi") {
				pub.DOI = strings.TrimSpace(id.ID)
			}
		}
		pubs = append(pubs, pub)
	}
	return pubs, diags, nil
}

// pubYear resolves the publication year from the structured element, then
// from the free-text MedlineDate, then from the electronic ArticleDate.
// Failure is noted, not fatal.
func pubYear(year, medlineDate, articleYear string, pub *domain.Publication) *int {
	if y, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
		return &y
	}
	if m := medlineYearRe.FindString(medlineDate); m != "" {
		y, _ := strconv.Atoi(m)
		return &y
	}
	if y, err := strconv.Atoi(strings.TrimSpace(articleYear)); err == nil {
		return &y
	}
	pub.Notes = append(pub.Notes, "no publication year")
	return nil
}

// newAuthor splits a PubMed ForeName ("John A") into first name and middle
// initials, falling back to the Initials element for the first initial.
func newAuthor(a pubmedAuthor) domain.Author {
	out := domain.Author{LastName: strings.TrimSpace(a.LastName)}
	parts := strings.Fields(a.ForeName)
	if len(parts) > 0 {
		out.FirstName = parts[0]
		out.MiddleInitials = parts[1:]
	}
	if a.Initials != "" {
		out.FirstInitial = string([]rune(a.Initials)[0])
	} else if out.FirstName != "" {
		out.FirstInitial = string([]rune(out.FirstName)[0])
	}
	return out
}
