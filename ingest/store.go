package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chirp/dbopen"
	"github.com/hazyhaar/chirp/idgen"
	"github.com/hazyhaar/chirp/report"
)

// Schema is the chirp document store DDL. The shield code tables are
// created here but owned by the enrichment collaborator: the core pipeline
// never seeds or mutates them.
const Schema = `
CREATE TABLE IF NOT EXISTS authors (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    email       TEXT
);

CREATE TABLE IF NOT EXISTS documents (
    id               TEXT PRIMARY KEY,
    title            TEXT,
    source           TEXT,
    filename         TEXT,
    publication_date TEXT,
    content_sha256   TEXT NOT NULL UNIQUE,
    author_id        TEXT REFERENCES authors(id),
    created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    position    INTEGER NOT NULL,
    UNIQUE (document_id, position)
);

CREATE TABLE IF NOT EXISTS sentences (
    id              TEXT PRIMARY KEY,
    section_id      TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
    document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    text            TEXT NOT NULL,
    text_type       TEXT NOT NULL CHECK (text_type IN ('paragraph','list_item','heading','table_row')),
    position        INTEGER NOT NULL,
    relevance_score REAL,
    embedding       BLOB,
    UNIQUE (section_id, position)
);

CREATE TABLE IF NOT EXISTS chirp_report_metadata (
    document_id       TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    vessel_name       TEXT,
    vessel_type       TEXT,
    accident_date     TEXT,
    accident_location TEXT,
    accident_type     TEXT,
    severity          TEXT,
    loss_of_life      TEXT,
    port_of_origin    TEXT,
    destination       TEXT,
    page_count        INTEGER,
    subject           TEXT
);

CREATE TABLE IF NOT EXISTS chirp_safety_issues (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    name        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chirp_safety_issue_sentences (
    issue_id    TEXT NOT NULL REFERENCES chirp_safety_issues(id) ON DELETE CASCADE,
    sentence_id TEXT NOT NULL REFERENCES sentences(id) ON DELETE CASCADE,
    PRIMARY KEY (issue_id, sentence_id)
);

CREATE TABLE IF NOT EXISTS chirp_organisations (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS chirp_recommendations (
    id              TEXT PRIMARY KEY,
    document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    reference_code  TEXT,
    recommendation  TEXT NOT NULL,
    organisation_id TEXT REFERENCES chirp_organisations(id),
    implemented     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chirp_shield_code_categories (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chirp_shield_codes (
    id          TEXT PRIMARY KEY,
    category_id TEXT REFERENCES chirp_shield_code_categories(id),
    code        TEXT NOT NULL UNIQUE,
    description TEXT
);

CREATE TABLE IF NOT EXISTS chirp_sentence_shield_codes (
    sentence_id    TEXT NOT NULL REFERENCES sentences(id) ON DELETE CASCADE,
    shield_code_id TEXT NOT NULL REFERENCES chirp_shield_codes(id),
    PRIMARY KEY (sentence_id, shield_code_id)
);

CREATE INDEX IF NOT EXISTS idx_documents_sha256    ON documents(content_sha256);
CREATE INDEX IF NOT EXISTS idx_sections_document   ON sections(document_id);
CREATE INDEX IF NOT EXISTS idx_sentences_document  ON sentences(document_id);
CREATE INDEX IF NOT EXISTS idx_sentences_section   ON sentences(section_id);
CREATE INDEX IF NOT EXISTS idx_issues_document     ON chirp_safety_issues(document_id);
CREATE INDEX IF NOT EXISTS idx_recs_document       ON chirp_recommendations(document_id);
`

// Store persists the document graph in SQLite.
type Store struct {
	db *sql.DB

	newDoc idgen.Generator
	newSec idgen.Generator
	newSen idgen.Generator
	newIss idgen.Generator
	newRec idgen.Generator
	newAut idgen.Generator
	newOrg idgen.Generator
}

// OpenStore opens (or creates) the document database at path and runs
// migrations. Transactions take the write lock immediately.
func OpenStore(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithTxLock("immediate"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already open database and runs migrations. Used by
// tests with dbopen.OpenMemory.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{
		db:     db,
		newDoc: idgen.Prefixed("doc_", idgen.Default),
		newSec: idgen.Prefixed("sec_", idgen.Default),
		newSen: idgen.Prefixed("sen_", idgen.Default),
		newIss: idgen.Prefixed("iss_", idgen.Default),
		newRec: idgen.Prefixed("rec_", idgen.Default),
		newAut: idgen.Prefixed("aut_", idgen.Default),
		newOrg: idgen.Prefixed("org_", idgen.Default),
	}, nil
}

// DB returns the underlying *sql.DB for sharing with the enrichment layer.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DocumentIDByFingerprint returns the id of the document whose extracted
// text hashes to sha256hex, or "" when none is stored.
func (s *Store) DocumentIDByFingerprint(ctx context.Context, sha256hex string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE content_sha256 = ?`, sha256hex).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fingerprint lookup: %w", err)
	}
	return id, nil
}

// SectionGraph is one section with its ordered sentences, ready to persist.
type SectionGraph struct {
	Name      string
	Position  int
	Sentences []report.Sentence
}

// IssueRef ties an extracted safety issue to the sentences it came from,
// addressed by section position and sentence positions within that section.
type IssueRef struct {
	Name              string
	SectionPosition   int
	SentencePositions []int
}

// DocumentGraph is the fully assembled output of the extraction pipeline,
// committed in one transaction.
type DocumentGraph struct {
	Title           string
	Source          string
	Filename        string
	PublicationDate string
	ContentSHA256   string
	AuthorName      string
	AuthorEmail     string
	Sections        []SectionGraph
	Metadata        report.ReportMetadata
	Issues          []IssueRef
	Recommendations []report.Recommendation
}

// SaveDocument writes the whole graph atomically and returns the new
// document id. A content_sha256 collision rolls everything back and
// returns ErrDuplicateContent: the UNIQUE constraint is the arbiter for
// concurrent same-content uploads.
func (s *Store) SaveDocument(ctx context.Context, g *DocumentGraph) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	authorID, err := s.upsertAuthorTx(ctx, tx, g.AuthorName, g.AuthorEmail)
	if err != nil {
		return "", err
	}

	docID := s.newDoc()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, source, filename, publication_date, content_sha256, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		docID, nullable(g.Title), nullable(g.Source), nullable(g.Filename),
		nullable(g.PublicationDate), g.ContentSHA256, authorID,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err, "documents.content_sha256") {
			return "", ErrDuplicateContent
		}
		return "", fmt.Errorf("insert document: %w", err)
	}

	// Sentence ids per section position, indexed by sentence position, for
	// the issue join rows below.
	sentenceIDs := make(map[int][]string, len(g.Sections))

	for _, sec := range g.Sections {
		secID := s.newSec()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, document_id, name, position) VALUES (?, ?, ?, ?)`,
			secID, docID, sec.Name, sec.Position); err != nil {
			return "", fmt.Errorf("insert section %q: %w", sec.Name, err)
		}

		ids := make([]string, len(sec.Sentences))
		for i, sen := range sec.Sentences {
			senID := s.newSen()
			ids[i] = senID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sentences (id, section_id, document_id, text, text_type, position)
				VALUES (?, ?, ?, ?, ?, ?)`,
				senID, secID, docID, sen.Text, string(sen.Type), sen.Position); err != nil {
				return "", fmt.Errorf("insert sentence %d in %q: %w", sen.Position, sec.Name, err)
			}
		}
		sentenceIDs[sec.Position] = ids
	}

	if !g.Metadata.IsEmpty() {
		md := g.Metadata
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chirp_report_metadata (document_id, vessel_name, vessel_type,
				accident_date, accident_location, accident_type, severity,
				loss_of_life, port_of_origin, destination, page_count, subject)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, nullable(md.VesselName), nullable(md.VesselType),
			nullable(md.AccidentDate), nullable(md.AccidentLocation),
			nullable(md.AccidentType), nullable(md.Severity),
			nullable(md.LossOfLife), nullable(md.PortOfOrigin),
			nullable(md.Destination), md.PageCount, nullable(md.Subject)); err != nil {
			return "", fmt.Errorf("insert metadata: %w", err)
		}
	}

	for _, iss := range g.Issues {
		issID := s.newIss()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chirp_safety_issues (id, document_id, name) VALUES (?, ?, ?)`,
			issID, docID, iss.Name); err != nil {
			return "", fmt.Errorf("insert issue: %w", err)
		}
		ids := sentenceIDs[iss.SectionPosition]
		for _, pos := range iss.SentencePositions {
			if pos < 0 || pos >= len(ids) {
				return "", fmt.Errorf("issue sentence position %d out of range", pos)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chirp_safety_issue_sentences (issue_id, sentence_id) VALUES (?, ?)`,
				issID, ids[pos]); err != nil {
				return "", fmt.Errorf("insert issue sentence: %w", err)
			}
		}
	}

	for _, rec := range g.Recommendations {
		var orgID any
		if rec.Organisation != "" {
			id, err := s.upsertOrganisationTx(ctx, tx, rec.Organisation)
			if err != nil {
				return "", err
			}
			orgID = id
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chirp_recommendations (id, document_id, reference_code, recommendation, organisation_id)
			VALUES (?, ?, ?, ?, ?)`,
			s.newRec(), docID, nullable(rec.Code), rec.Text, orgID); err != nil {
			return "", fmt.Errorf("insert recommendation %s: %w", rec.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err, "documents.content_sha256") {
			return "", ErrDuplicateContent
		}
		return "", fmt.Errorf("commit: %w", err)
	}
	return docID, nil
}

func (s *Store) upsertAuthorTx(ctx context.Context, tx *sql.Tx, name, email string) (string, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO authors (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		s.newAut(), name, nullable(email)); err != nil {
		return "", fmt.Errorf("upsert author: %w", err)
	}
	var id string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM authors WHERE name = ?`, name).Scan(&id); err != nil {
		return "", fmt.Errorf("select author: %w", err)
	}
	return id, nil
}

func (s *Store) upsertOrganisationTx(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	norm := NormalizeOrgName(name)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chirp_organisations (id, name) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`,
		s.newOrg(), norm); err != nil {
		return "", fmt.Errorf("upsert organisation: %w", err)
	}
	var id string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM chirp_organisations WHERE name = ?`, norm).Scan(&id); err != nil {
		return "", fmt.Errorf("select organisation: %w", err)
	}
	return id, nil
}

// NormalizeOrgName lowercases and collapses whitespace so spelling variants
// of the same organisation share one row.
func NormalizeOrgName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// DeleteDocument removes a document; sections, sentences, metadata, issues
// and recommendations cascade through foreign keys. Shared authors and
// organisations are untouched.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// storeTables names every table SaveDocument may touch, for count checks.
var storeTables = []string{
	"authors", "documents", "sections", "sentences",
	"chirp_report_metadata", "chirp_safety_issues",
	"chirp_safety_issue_sentences", "chirp_recommendations",
	"chirp_organisations",
}

// CountRows returns the row count of one known table. Unknown tables are
// rejected so no caller path concatenates arbitrary SQL.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	ok := false
	for _, t := range storeTables {
		if t == table {
			ok = true
			break
		}
	}
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func isUniqueViolation(err error, constraint string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+constraint)
}

// nullable maps "" to NULL so empty extractions store as absent, not as
// empty strings.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
