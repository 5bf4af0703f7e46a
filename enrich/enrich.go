// Package enrich is the read-and-annotate surface for stored documents.
// Collaborating services list a document's sentences in stable order and
// attach relevance scores, embeddings and shield codes. Nothing here
// touches the structural columns the ingest pipeline wrote: text, type,
// position and parentage are immutable after commit.
package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/chirp/ingest"
)

// SentenceView is one sentence row as seen by collaborators, with its
// section context.
type SentenceView struct {
	ID              string   `json:"id"`
	SectionID       string   `json:"section_id"`
	SectionName     string   `json:"section_name"`
	SectionPosition int      `json:"section_position"`
	Text            string   `json:"text"`
	TextType        string   `json:"text_type"`
	Position        int      `json:"position"`
	RelevanceScore  *float64 `json:"relevance_score,omitempty"`
	EmbeddingDims   int      `json:"embedding_dims,omitempty"`
}

// ShieldCode is one classification code with its category.
type ShieldCode struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Service exposes enrichment operations over a shared document database.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates an enrichment service over the ingest store's database.
func New(db *sql.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// ListSentences returns every sentence of a document ordered by section
// position, then sentence position. The order is stable across calls and
// across enrichment writes.
func (s *Service) ListSentences(ctx context.Context, documentID string) ([]SentenceView, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", documentID, ingest.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("document lookup: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sen.id, sec.id, sec.name, sec.position,
		       sen.text, sen.text_type, sen.position,
		       sen.relevance_score, LENGTH(sen.embedding)
		FROM sentences sen
		JOIN sections sec ON sec.id = sen.section_id
		WHERE sen.document_id = ?
		ORDER BY sec.position, sen.position`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list sentences: %w", err)
	}
	defer rows.Close()

	var out []SentenceView
	for rows.Next() {
		var v SentenceView
		var score sql.NullFloat64
		var embLen sql.NullInt64
		if err := rows.Scan(&v.ID, &v.SectionID, &v.SectionName, &v.SectionPosition,
			&v.Text, &v.TextType, &v.Position, &score, &embLen); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		if score.Valid {
			v.RelevanceScore = &score.Float64
		}
		if embLen.Valid {
			v.EmbeddingDims = int(embLen.Int64) / 4
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sentences: %w", err)
	}
	return out, nil
}

// SetRelevance stores a relevance score in [0,1] on one sentence.
func (s *Service) SetRelevance(ctx context.Context, sentenceID string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("relevance score %v out of range [0,1]", score)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sentences SET relevance_score = ? WHERE id = ?`, score, sentenceID)
	if err != nil {
		return fmt.Errorf("set relevance: %w", err)
	}
	if err := checkFound(res, sentenceID); err != nil {
		return err
	}
	s.logger.Debug("relevance set", "sentence_id", sentenceID, "score", score)
	return nil
}

// SetEmbedding stores an embedding vector on one sentence as a
// little-endian float32 blob. A nil or empty vector clears it.
func (s *Service) SetEmbedding(ctx context.Context, sentenceID string, vec []float32) error {
	var blob any
	if len(vec) > 0 {
		blob = SerializeVector(vec)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sentences SET embedding = ? WHERE id = ?`, blob, sentenceID)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if err := checkFound(res, sentenceID); err != nil {
		return err
	}
	s.logger.Debug("embedding set", "sentence_id", sentenceID, "dims", len(vec))
	return nil
}

// GetEmbedding reads a sentence's embedding back, or nil when unset.
func (s *Service) GetEmbedding(ctx context.Context, sentenceID string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM sentences WHERE id = ?`, sentenceID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sentence %s: %w", sentenceID, ingest.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	if len(blob) == 0 {
		return nil, nil
	}
	return DeserializeVector(blob), nil
}

// AttachShieldCode links a shield code to a sentence. Attaching the same
// code twice is a no-op.
func (s *Service) AttachShieldCode(ctx context.Context, sentenceID, shieldCodeID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chirp_sentence_shield_codes (sentence_id, shield_code_id)
		VALUES (?, ?)`, sentenceID, shieldCodeID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("sentence %s or code %s: %w", sentenceID, shieldCodeID, ingest.ErrNotFound)
		}
		return fmt.Errorf("attach shield code: %w", err)
	}
	return nil
}

// DetachShieldCode removes a shield code link from a sentence.
func (s *Service) DetachShieldCode(ctx context.Context, sentenceID, shieldCodeID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chirp_sentence_shield_codes
		WHERE sentence_id = ? AND shield_code_id = ?`, sentenceID, shieldCodeID)
	if err != nil {
		return fmt.Errorf("detach shield code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s/%s: %w", sentenceID, shieldCodeID, ingest.ErrNotFound)
	}
	return nil
}

// ListShieldCodes returns all shield codes joined with their categories.
func (s *Service) ListShieldCodes(ctx context.Context) ([]ShieldCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.code, COALESCE(c.description, ''), COALESCE(cat.name, '')
		FROM chirp_shield_codes c
		LEFT JOIN chirp_shield_code_categories cat ON cat.id = c.category_id
		ORDER BY c.code`)
	if err != nil {
		return nil, fmt.Errorf("list shield codes: %w", err)
	}
	defer rows.Close()

	var out []ShieldCode
	for rows.Next() {
		var c ShieldCode
		if err := rows.Scan(&c.ID, &c.Code, &c.Description, &c.Category); err != nil {
			return nil, fmt.Errorf("scan shield code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shield codes: %w", err)
	}
	return out, nil
}

// SentenceShieldCodes returns the codes attached to one sentence.
func (s *Service) SentenceShieldCodes(ctx context.Context, sentenceID string) ([]ShieldCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.code, COALESCE(c.description, ''), COALESCE(cat.name, '')
		FROM chirp_sentence_shield_codes link
		JOIN chirp_shield_codes c ON c.id = link.shield_code_id
		LEFT JOIN chirp_shield_code_categories cat ON cat.id = c.category_id
		WHERE link.sentence_id = ?
		ORDER BY c.code`, sentenceID)
	if err != nil {
		return nil, fmt.Errorf("sentence shield codes: %w", err)
	}
	defer rows.Close()

	var out []ShieldCode
	for rows.Next() {
		var c ShieldCode
		if err := rows.Scan(&c.ID, &c.Code, &c.Description, &c.Category); err != nil {
			return nil, fmt.Errorf("scan shield code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sentence shield codes: %w", err)
	}
	return out, nil
}

func checkFound(res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sentence %s: %w", id, ingest.ErrNotFound)
	}
	return nil
}
