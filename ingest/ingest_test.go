package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/chirp/dbopen"
	"github.com/hazyhaar/chirp/report"
)

const sampleReport = `Report on the investigation of the grounding of MV Example

Vessel name: MV Example
Type of vessel: General cargo

SYNOPSIS

At 0200 on 12 March 2022 the vessel grounded. There were no injuries.

SECTION 1 - FACTUAL INFORMATION

The vessel departed Dover at 0600 bound for Rotterdam.

CONCLUSIONS

3.1 Safety issues directly contributing to the accident

1. The passage plan was incomplete [2.1].
2. The bridge was unmanned.

RECOMMENDATIONS

2023/101 The vessel operator is recommended to review its passage planning procedures.
`

func newTestIngester(t *testing.T) *Ingester {
	t.Helper()
	store, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ing, err := NewIngester(DefaultConfig(), WithStore(store))
	if err != nil {
		t.Fatalf("NewIngester: %v", err)
	}
	return ing
}

func TestIngestTextReport(t *testing.T) {
	ing := newTestIngester(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, []byte(sampleReport), "upload", "report.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Outcome != OutcomeCreated || res.DocumentID == "" {
		t.Fatalf("result = %+v", res)
	}

	if res.Sections != 4 {
		t.Errorf("sections = %d, want 4", res.Sections)
	}
	if res.Sentences != 7 {
		t.Errorf("sentences = %d, want 7", res.Sentences)
	}
	if res.Issues != 2 {
		t.Errorf("issues = %d, want 2", res.Issues)
	}
	if res.Recommendations != 1 {
		t.Errorf("recommendations = %d, want 1", res.Recommendations)
	}
	if !strings.Contains(res.Title, "grounding of MV Example") {
		t.Errorf("title = %q", res.Title)
	}

	wantCounts := map[string]int{
		"documents":                    1,
		"sections":                     4,
		"sentences":                    7,
		"chirp_safety_issues":          2,
		"chirp_safety_issue_sentences": 2,
		"chirp_recommendations":        1,
		"chirp_organisations":          1,
		"chirp_report_metadata":        1,
		"authors":                      1,
	}
	for table, want := range wantCounts {
		got, err := ing.Store.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s): %v", table, err)
		}
		if got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	var author string
	if err := ing.Store.DB().QueryRowContext(ctx, `
		SELECT a.name FROM authors a
		JOIN documents d ON d.author_id = a.id
		WHERE d.id = ?`, res.DocumentID).Scan(&author); err != nil {
		t.Fatalf("author: %v", err)
	}
	if author != DefaultAuthor {
		t.Errorf("author = %q", author)
	}

	var vessel string
	if err := ing.Store.DB().QueryRowContext(ctx, `
		SELECT vessel_name FROM chirp_report_metadata WHERE document_id = ?`,
		res.DocumentID).Scan(&vessel); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if vessel != "MV Example" {
		t.Errorf("vessel_name = %q", vessel)
	}

	var org string
	if err := ing.Store.DB().QueryRowContext(ctx, `
		SELECT o.name FROM chirp_organisations o
		JOIN chirp_recommendations r ON r.organisation_id = o.id`).Scan(&org); err != nil {
		t.Fatalf("organisation: %v", err)
	}
	if org != "the vessel operator" {
		t.Errorf("organisation = %q", org)
	}
}

func TestIngestPositionsContiguous(t *testing.T) {
	ing := newTestIngester(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, []byte(sampleReport), "upload", "report.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	rows, err := ing.Store.DB().QueryContext(ctx, `
		SELECT s.id, COUNT(*), MIN(sen.position), MAX(sen.position)
		FROM sections s JOIN sentences sen ON sen.section_id = s.id
		WHERE s.document_id = ?
		GROUP BY s.id`, res.DocumentID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n, lo, hi int
		if err := rows.Scan(&id, &n, &lo, &hi); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if lo != 0 || hi != n-1 {
			t.Errorf("section %s positions [%d,%d] over %d sentences", id, lo, hi, n)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
}

func TestIngestDuplicateIsIdempotent(t *testing.T) {
	ing := newTestIngester(t)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, []byte(sampleReport), "upload", "report.txt")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	second, err := ing.Ingest(ctx, []byte(sampleReport), "upload", "copy.txt")
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("second ingest err = %v, want ErrDuplicateContent", err)
	}
	if second.Outcome != OutcomeDuplicate || second.DocumentID != first.DocumentID {
		t.Errorf("second = %+v, first id %s", second, first.DocumentID)
	}

	for _, table := range []string{"documents", "sections", "sentences"} {
		got, err := ing.Store.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s): %v", table, err)
		}
		want := map[string]int{"documents": 1, "sections": 4, "sentences": 7}[table]
		if got != want {
			t.Errorf("%s rows = %d after duplicate, want %d", table, got, want)
		}
	}
}

func TestIngestNoExtractableText(t *testing.T) {
	ing := newTestIngester(t)

	_, err := ing.Ingest(context.Background(), []byte("   \n\t  \n"), "upload", "empty.txt")
	if !errors.Is(err, ErrNoExtractableText) {
		t.Fatalf("err = %v, want ErrNoExtractableText", err)
	}

	n, err := ing.Store.CountRows(context.Background(), "documents")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 0 {
		t.Errorf("documents = %d after failed ingest", n)
	}
}

func TestIngestBodyFallback(t *testing.T) {
	ing := newTestIngester(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, []byte("Plain text with no headings.\nJust two lines of it.\n"), "upload", "note.txt")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Sections != 1 {
		t.Fatalf("sections = %d, want 1", res.Sections)
	}

	var name string
	if err := ing.Store.DB().QueryRowContext(ctx,
		`SELECT name FROM sections WHERE document_id = ?`, res.DocumentID).Scan(&name); err != nil {
		t.Fatalf("section name: %v", err)
	}
	if name != report.BodySection {
		t.Errorf("section name = %q", name)
	}
}

func testGraph(fingerprint, org string) *DocumentGraph {
	return &DocumentGraph{
		Title:         "Test document " + fingerprint,
		Filename:      "test.txt",
		ContentSHA256: fingerprint,
		AuthorName:    DefaultAuthor,
		Sections: []SectionGraph{{
			Name:     report.BodySection,
			Position: 0,
			Sentences: []report.Sentence{
				{Text: "One sentence.", Type: report.TypeParagraph, Position: 0},
			},
		}},
		Recommendations: []report.Recommendation{
			{Code: "2024/001", Text: "Do the thing.", Organisation: org},
		},
	}
}

func TestOrganisationSharedAcrossDocuments(t *testing.T) {
	store, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.SaveDocument(ctx, testGraph("fp-1", "The Vessel  Operator")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := store.SaveDocument(ctx, testGraph("fp-2", "the vessel operator")); err != nil {
		t.Fatalf("second save: %v", err)
	}

	n, err := store.CountRows(ctx, "chirp_organisations")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 1 {
		t.Errorf("organisations = %d, want 1 shared row", n)
	}

	var distinct int
	if err := store.DB().QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT organisation_id) FROM chirp_recommendations`).Scan(&distinct); err != nil {
		t.Fatalf("distinct orgs: %v", err)
	}
	if distinct != 1 {
		t.Errorf("distinct organisation ids = %d, want 1", distinct)
	}
}

func TestConcurrentSameContent(t *testing.T) {
	store, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.SaveDocument(ctx, testGraph("same-fingerprint", "Org"))
		}(i)
	}
	wg.Wait()

	var oks, dups int
	for _, err := range errs {
		switch {
		case err == nil:
			oks++
		case errors.Is(err, ErrDuplicateContent):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if oks != 1 || dups != 1 {
		t.Errorf("oks = %d, dups = %d, want exactly one of each", oks, dups)
	}

	n, err := store.CountRows(ctx, "documents")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	store, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	docID, err := store.SaveDocument(ctx, testGraph("fp-del", "Some Org"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, table := range []string{"documents", "sections", "sentences", "chirp_recommendations"} {
		n, err := store.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s): %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s rows = %d after delete, want 0", table, n)
		}
	}

	// Shared rows survive.
	for _, table := range []string{"authors", "chirp_organisations"} {
		n, err := store.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s): %v", table, err)
		}
		if n != 1 {
			t.Errorf("%s rows = %d after delete, want 1", table, n)
		}
	}

	if err := store.DeleteDocument(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentCascadesAcrossConnections(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.DB().Close()
	// No idle connections: the delete and the counts below each run on a
	// connection opened after the save, which must still enforce cascades.
	store.DB().SetMaxIdleConns(0)
	ctx := context.Background()

	g := testGraph("fp-churn", "Some Org")
	g.Issues = []IssueRef{{Name: "One sentence.", SectionPosition: 0, SentencePositions: []int{0}}}
	docID, err := store.SaveDocument(ctx, g)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, table := range []string{"sections", "sentences", "chirp_safety_issue_sentences", "chirp_recommendations"} {
		n, err := store.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("CountRows(%s): %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s rows = %d after delete, want 0", table, n)
		}
	}
}

func TestValidateGraphRejectsGaps(t *testing.T) {
	g := testGraph("fp-gap", "")
	g.Sections[0].Sentences[0].Position = 1

	if err := validateGraph(g); err == nil {
		t.Fatal("expected position gap to be rejected")
	}

	g2 := testGraph("fp-iss", "")
	g2.Issues = []IssueRef{{Name: "Issue", SectionPosition: 0, SentencePositions: []int{5}}}
	if err := validateGraph(g2); err == nil {
		t.Fatal("expected out-of-range issue sentence to be rejected")
	}
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxFileBytes() != 50*1024*1024 {
		t.Errorf("MaxFileBytes = %d", cfg.MaxFileBytes())
	}

	bad := DefaultConfig()
	bad.MaxFileMB = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero max_file_mb accepted")
	}
}
