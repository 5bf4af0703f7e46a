// Package docpdf extracts raw text and file metadata from uploaded incident
// reports.
//
// Supported formats:
//   - .pdf   — PDF text extraction (pdfcpu, cross-reference + stream decoding)
//   - .html  — HTML (x/net/html node walk)
//   - .txt   — plain text (passthrough with whitespace normalization)
//
// The extractor is line-preserving: downstream segmentation locates section
// headings and numbered items by line, so page text keeps its newlines and
// only intra-line whitespace is normalized.
//
// Usage:
//
//	ex := docpdf.New(docpdf.Config{})
//	raw, err := ex.Extract(ctx, data, "report.pdf")
//	fmt.Println(raw.Meta.Title, len(raw.Pages), "pages")
package docpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ErrNoText signals that the file parsed but yielded no text on any page.
var ErrNoText = errors.New("no text content")

// Format identifies an upload type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatTXT  Format = "txt"
)

// FileMeta is the file-level metadata carried by the source document.
type FileMeta struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	PageCount int    `json:"page_count"`
}

// Raw is the result of raw content extraction: page-level text plus
// file metadata. FullText joins pages with blank lines.
type Raw struct {
	Format   Format   `json:"format"`
	Pages    []string `json:"pages"`
	FullText string   `json:"full_text"`
	Meta     FileMeta `json:"meta"`
}

// Config configures the extractor.
type Config struct {
	// MaxFileSize is the maximum upload size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor is the raw content extraction engine.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// Detect returns the upload format from content sniffing, falling back to
// the filename extension. PDF magic wins over any extension.
func (e *Extractor) Detect(data []byte, filename string) (Format, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, nil
	}
	head := bytes.ToLower(bytes.TrimSpace(data[:min(len(data), 256)]))
	if bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html")) {
		return FormatHTML, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".txt", ".text", "":
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", filepath.Ext(filename))
	}
}

// Extract parses an uploaded document and returns page text plus metadata.
// Returns an error when the document yields no extractable text at all.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*Raw, error) {
	if int64(len(data)) > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), e.cfg.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := e.Detect(data, filename)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("extracting document", "filename", filename, "format", format, "bytes", len(data))

	var raw *Raw
	switch format {
	case FormatPDF:
		raw, err = extractPDF(data)
	case FormatHTML:
		raw, err = extractHTML(data)
	case FormatTXT:
		raw, err = extractText(data)
	default:
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w", filename, format, err)
	}

	raw.Format = format
	raw.FullText = joinPages(raw.Pages)
	if strings.TrimSpace(raw.FullText) == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoText, filename)
	}
	return raw, nil
}

// joinPages concatenates page texts with a blank line between pages.
func joinPages(pages []string) string {
	var sb strings.Builder
	for _, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p)
	}
	return sb.String()
}
