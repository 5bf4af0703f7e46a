// Package ingest turns uploaded incident reports into the stored document
// graph: documents, sections, typed sentences, safety issues,
// recommendations and the particulars metadata, committed atomically with
// SHA-256 content deduplication.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/chirp/docpdf"
	"github.com/hazyhaar/chirp/observability"
	"github.com/hazyhaar/chirp/report"
)

// Outcome classifies an ingest attempt.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result summarises one ingest attempt. On a duplicate, DocumentID carries
// the already stored document's id.
type Result struct {
	DocumentID      string  `json:"document_id"`
	Outcome         Outcome `json:"outcome"`
	Title           string  `json:"title,omitempty"`
	Sections        int     `json:"sections"`
	Sentences       int     `json:"sentences"`
	Issues          int     `json:"issues"`
	Recommendations int     `json:"recommendations"`
}

// Ingester is the pipeline orchestrator: extraction, pure staging,
// integrity check, transactional commit.
type Ingester struct {
	Store     *Store
	Config    *Config
	Extractor *docpdf.Extractor
	Logger    *slog.Logger

	Audit   *observability.AuditLogger
	Metrics *observability.MetricsManager
	Events  *observability.EventLogger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithStore injects an already open store (tests use this with an
// in-memory database).
func WithStore(s *Store) Option { return func(ing *Ingester) { ing.Store = s } }

// WithAudit sets the audit logger.
func WithAudit(a *observability.AuditLogger) Option {
	return func(ing *Ingester) { ing.Audit = a }
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *observability.MetricsManager) Option {
	return func(ing *Ingester) { ing.Metrics = m }
}

// WithEvents sets the event logger.
func WithEvents(e *observability.EventLogger) Option {
	return func(ing *Ingester) { ing.Events = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(ing *Ingester) { ing.Logger = l } }

// NewIngester creates a fully wired ingester. Unless WithStore is given,
// the store is opened at cfg.DBPath.
func NewIngester(cfg *Config, opts ...Option) (*Ingester, error) {
	ing := &Ingester{Config: cfg}
	for _, o := range opts {
		o(ing)
	}
	if ing.Store == nil {
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		ing.Store = store
	}
	if ing.Logger == nil {
		ing.Logger = slog.Default()
	}
	if ing.Extractor == nil {
		ing.Extractor = docpdf.New(docpdf.Config{
			MaxFileSize: cfg.MaxFileBytes(),
			Logger:      ing.Logger,
		})
	}
	return ing, nil
}

// Close releases the store.
func (ing *Ingester) Close() error { return ing.Store.Close() }

// Ingest runs the full pipeline on one uploaded file. Duplicate content
// returns a Result with the existing document id alongside
// ErrDuplicateContent; files with no extractable text return
// ErrNoExtractableText.
func (ing *Ingester) Ingest(ctx context.Context, data []byte, source, filename string) (*Result, error) {
	start := time.Now()
	res, err := ing.run(ctx, data, source, filename)
	ing.record(ctx, res, filename, err, time.Since(start))
	return res, err
}

func (ing *Ingester) run(ctx context.Context, data []byte, source, filename string) (*Result, error) {
	raw, err := ing.Extractor.Extract(ctx, data, filename)
	if err != nil {
		if errors.Is(err, docpdf.ErrNoText) {
			return nil, fmt.Errorf("%s: %w", filename, ErrNoExtractableText)
		}
		return nil, fmt.Errorf("extract: %w", err)
	}

	sum := sha256.Sum256([]byte(raw.FullText))
	fingerprint := hex.EncodeToString(sum[:])

	// Cheap pre-check; the UNIQUE constraint at commit time is the final
	// arbiter for concurrent uploads.
	if id, err := ing.Store.DocumentIDByFingerprint(ctx, fingerprint); err != nil {
		return nil, err
	} else if id != "" {
		return &Result{DocumentID: id, Outcome: OutcomeDuplicate}, ErrDuplicateContent
	}

	g := ing.assemble(raw, source, filename, fingerprint)
	if err := validateGraph(g); err != nil {
		return nil, fmt.Errorf("pipeline integrity: %w", err)
	}

	docID, err := ing.Store.SaveDocument(ctx, g)
	if errors.Is(err, ErrDuplicateContent) {
		id, lookErr := ing.Store.DocumentIDByFingerprint(ctx, fingerprint)
		if lookErr != nil {
			return nil, lookErr
		}
		return &Result{DocumentID: id, Outcome: OutcomeDuplicate}, ErrDuplicateContent
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		DocumentID:      docID,
		Outcome:         OutcomeCreated,
		Title:           g.Title,
		Sections:        len(g.Sections),
		Issues:          len(g.Issues),
		Recommendations: len(g.Recommendations),
	}
	for _, sec := range g.Sections {
		res.Sentences += len(sec.Sentences)
	}
	return res, nil
}

// assemble runs the pure extraction stages over the raw text and builds
// the graph to persist.
func (ing *Ingester) assemble(raw *docpdf.Raw, source, filename, fingerprint string) *DocumentGraph {
	sections := report.SplitSections(raw.FullText)

	g := &DocumentGraph{
		Title:           report.ExtractTitle(raw.FullText, raw.Meta.Title),
		Source:          source,
		Filename:        filename,
		PublicationDate: report.ExtractPublicationDate(raw.FullText),
		ContentSHA256:   fingerprint,
		AuthorName:      strings.TrimSpace(raw.Meta.Author),
		Metadata:        report.MapMetadata(docpdf.KeyValueRows(raw.Pages), raw.Meta),
		Sections:        make([]SectionGraph, len(sections)),
	}
	if g.AuthorName == "" {
		g.AuthorName = ing.Config.DefaultAuthor
	}

	for i, sec := range sections {
		g.Sections[i] = SectionGraph{
			Name:      sec.Name,
			Position:  sec.Position,
			Sentences: report.SplitSentences(sec.Text),
		}
	}

	for i := range g.Sections {
		sec := &g.Sections[i]
		upper := strings.ToUpper(sec.Name)
		switch {
		case strings.Contains(upper, "CONCLUSION"):
			for _, iss := range report.ExtractIssues(sec.Sentences) {
				g.Issues = append(g.Issues, IssueRef{
					Name:              iss.Description,
					SectionPosition:   sec.Position,
					SentencePositions: iss.Positions,
				})
			}
		case strings.Contains(upper, "RECOMMENDATION"):
			g.Recommendations = append(g.Recommendations,
				report.ExtractRecommendations(sec.Sentences)...)
		}
	}
	return g
}

// validateGraph checks the assembled graph before commit. A violation here
// is a pipeline bug, never bad input: abort rather than store a broken
// graph.
func validateGraph(g *DocumentGraph) error {
	if g.ContentSHA256 == "" {
		return fmt.Errorf("missing fingerprint")
	}
	if len(g.Sections) == 0 {
		return fmt.Errorf("no sections")
	}
	for i, sec := range g.Sections {
		if sec.Position != i {
			return fmt.Errorf("section %q at position %d, want %d", sec.Name, sec.Position, i)
		}
		for j, sen := range sec.Sentences {
			if sen.Position != j {
				return fmt.Errorf("sentence in %q at position %d, want %d", sec.Name, sen.Position, j)
			}
		}
	}
	for _, iss := range g.Issues {
		if strings.TrimSpace(iss.Name) == "" {
			return fmt.Errorf("empty safety issue")
		}
		if iss.SectionPosition < 0 || iss.SectionPosition >= len(g.Sections) {
			return fmt.Errorf("issue section position %d out of range", iss.SectionPosition)
		}
		n := len(g.Sections[iss.SectionPosition].Sentences)
		for _, pos := range iss.SentencePositions {
			if pos < 0 || pos >= n {
				return fmt.Errorf("issue sentence position %d out of range", pos)
			}
		}
	}
	return nil
}

// record emits audit, business event and metric entries for one attempt.
// All sinks are optional.
func (ing *Ingester) record(ctx context.Context, res *Result, filename string, err error, elapsed time.Duration) {
	outcome := OutcomeFailed
	docID := ""
	if res != nil {
		outcome = res.Outcome
		docID = res.DocumentID
	}

	ing.Logger.Info("ingest",
		"filename", filename,
		"outcome", string(outcome),
		"document_id", docID,
		"duration_ms", elapsed.Milliseconds(),
	)

	if ing.Audit != nil {
		entry := ing.Audit.NewAuditEntry("ingester", "document.ingest",
			map[string]string{"filename": filename}, res, err, elapsed)
		if outcome == OutcomeDuplicate {
			entry.Status = "duplicate"
		}
		ing.Audit.LogAsync(entry)
	}
	if ing.Events != nil {
		ing.Events.LogEvent(ctx, observability.BusinessEvent{
			EventType:   "document.ingest",
			ServiceName: "chirp",
			EntityType:  "document",
			EntityID:    docID,
			Action:      string(outcome),
			Success:     err == nil,
		})
	}
	if ing.Metrics != nil {
		ing.Metrics.RecordSimple(observability.MetricIngestDurationMs,
			float64(elapsed.Milliseconds()), "milliseconds")
		ing.Metrics.Record(&observability.Metric{
			Name:   observability.MetricIngestCount,
			Value:  1,
			Unit:   "count",
			Labels: map[string]string{"outcome": string(outcome)},
		})
		if res != nil && outcome == OutcomeCreated {
			ing.Metrics.RecordSimple(observability.MetricSentenceCount,
				float64(res.Sentences), "count")
		}
	}
}
