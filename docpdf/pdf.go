package docpdf

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF extracts page text and info-dict metadata from PDF bytes.
func extractPDF(data []byte) (*Raw, error) {
	conf := model.NewDefaultConfiguration()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	raw := &Raw{Meta: FileMeta{PageCount: ctx.PageCount}}

	if info, err := api.PDFInfo(bytes.NewReader(data), "", nil, false, conf); err == nil && info != nil {
		raw.Meta.Title = strings.TrimSpace(info.Title)
		raw.Meta.Author = strings.TrimSpace(info.Author)
		raw.Meta.Subject = strings.TrimSpace(info.Subject)
	}

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageText := extractPageText(ctx, pageNr)
		if pageText == "" {
			continue
		}
		raw.Pages = append(raw.Pages, pageText)
	}

	if len(raw.Pages) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}
	return raw, nil
}

// extractPageText extracts text from a single PDF page via pdfcpu content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
// Text-show operators append to the current line; positioning operators
// (Td/TD/T*/') start a new line, so the page keeps its visual line
// structure for the section segmenter.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	appendMatches := func(line []byte) {
		matches := pdfStringRe.FindAllSubmatch(line, -1)
		for _, m := range matches {
			if text := decodePDFString(m[1]); text != "" {
				sb.WriteString(text)
			}
		}
	}

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		// Tj operator: (text) Tj
		case bytes.HasSuffix(line, []byte("Tj")):
			appendMatches(line)

		// TJ operator: [(text) -100 (more text)] TJ
		case bytes.HasSuffix(line, []byte("TJ")):
			appendMatches(line)

		// ' operator (move to next line and show text): (text) '
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			appendMatches(line)

		// Td/TD operators reposition the text cursor: new visual line.
		case bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}

		// T* operator (move to start of next line).
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanPageText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanPageText normalizes whitespace within each line but keeps the line
// breaks. A single space stays a space; a tab or a run of three or more
// spaces becomes a two-space column gap so that tabular rows remain
// detectable downstream. Non-printable runes are dropped, blank lines
// removed.
func cleanPageText(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		run := 0
		sawTab := false
		flushGap := func() {
			if run == 0 || sb.Len() == 0 {
				run, sawTab = 0, false
				return
			}
			if sawTab || run >= 3 {
				sb.WriteString("  ")
			} else {
				sb.WriteByte(' ')
			}
			run, sawTab = 0, false
		}
		for _, r := range line {
			if r == '\t' {
				run++
				sawTab = true
			} else if unicode.IsSpace(r) {
				run++
			} else if unicode.IsPrint(r) {
				flushGap()
				sb.WriteRune(r)
			}
		}
		cleaned := strings.TrimRight(sb.String(), " ")
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, "\n")
}
