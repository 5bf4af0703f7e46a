package report

import (
	"regexp"
	"strings"
	"unicode"
)

// SentenceType is the closed set of structural sentence tags.
type SentenceType string

const (
	TypeParagraph SentenceType = "paragraph"
	TypeListItem  SentenceType = "list_item"
	TypeHeading   SentenceType = "heading"
	TypeTableRow  SentenceType = "table_row"
)

// Sentence is the smallest stored text unit, typed and ordered within its
// section.
type Sentence struct {
	Text     string       `json:"text"`
	Type     SentenceType `json:"text_type"`
	Position int          `json:"position"`
}

var (
	sectionHeadingRe    = regexp.MustCompile(`(?i)^SECTION\s+\d+`)
	subsectionHeadingRe = regexp.MustCompile(`^\d+\.\d+(\.\d+)?\s+`)
	bulletRe            = regexp.MustCompile(`^[-*●•]\s+`)
	numberedItemRe      = regexp.MustCompile(`^[a-zA-Z0-9][.)]\s+`)
	parenItemRe         = regexp.MustCompile(`^\([a-zA-Z0-9]+\)\s+`)
)

// classifyLine assigns a structural type to a single non-blank line.
// Priority: heading, then list_item, then table_row, then paragraph.
func classifyLine(line string) SentenceType {
	if len(line) < 80 {
		switch {
		case sectionHeadingRe.MatchString(line):
			return TypeHeading
		case subsectionHeadingRe.MatchString(line):
			return TypeHeading
		case isShoutHeading(line):
			return TypeHeading
		}
	}
	if bulletRe.MatchString(line) || numberedItemRe.MatchString(line) || parenItemRe.MatchString(line) {
		return TypeListItem
	}
	if isTableRow(line) {
		return TypeTableRow
	}
	return TypeParagraph
}

// isShoutHeading matches short all-caps lines without terminal punctuation,
// e.g. "SYNOPSIS" or "NARRATIVE". Requires at least two letters so stray
// initials don't qualify.
func isShoutHeading(line string) bool {
	if strings.ContainsAny(line, ".!?") {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

// isTableRow detects a line drawn from a tabular region: two or more cells
// separated by column gaps (two or more spaces).
func isTableRow(line string) bool {
	cells := 0
	for _, cell := range strings.Split(line, "  ") {
		if strings.TrimSpace(cell) != "" {
			cells++
		}
	}
	return cells >= 2
}

type block struct {
	typ  SentenceType
	text string
}

// SplitSentences segments one section's text into ordered, typed sentence
// records. Every non-blank line is assigned to exactly one record.
//
// PDF extraction yields visual lines, not paragraphs: consecutive prose
// lines are first reassembled into blocks, multi-line list items are
// joined, then paragraph blocks are split into sentences at terminal
// punctuation with abbreviation handling. Positions are assigned per
// section in encounter order from 0.
func SplitSentences(text string) []Sentence {
	blocks := buildBlocks(text)

	var sentences []Sentence
	position := 0
	emit := func(typ SentenceType, text string) {
		sentences = append(sentences, Sentence{Text: text, Type: typ, Position: position})
		position++
	}

	for _, b := range blocks {
		if b.typ != TypeParagraph {
			emit(b.typ, b.text)
			continue
		}
		for _, s := range splitProse(b.text) {
			emit(TypeParagraph, s)
		}
	}
	return sentences
}

// buildBlocks reassembles the visual line stream into typed blocks:
// standalone headings and table rows, joined multi-line list items, and
// reconstructed paragraphs.
func buildBlocks(text string) []block {
	var blocks []block
	var paragraph []string
	listItem := ""

	flushParagraph := func() {
		if len(paragraph) > 0 {
			blocks = append(blocks, block{TypeParagraph, strings.Join(paragraph, " ")})
			paragraph = paragraph[:0]
		}
	}
	flushListItem := func() {
		if listItem != "" {
			blocks = append(blocks, block{TypeListItem, listItem})
			listItem = ""
		}
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			flushParagraph()
			flushListItem()
			continue
		}

		switch classifyLine(stripped) {
		case TypeHeading:
			flushListItem()
			flushParagraph()
			blocks = append(blocks, block{TypeHeading, stripped})

		case TypeTableRow:
			flushListItem()
			flushParagraph()
			blocks = append(blocks, block{TypeTableRow, normalizeRow(stripped)})

		case TypeListItem:
			flushParagraph()
			flushListItem()
			listItem = stripped

		default:
			if listItem != "" {
				// A prose line directly under a list item continues it when
				// the item has no terminal punctuation yet and the line
				// starts lowercase.
				open := !strings.HasSuffix(strings.TrimRight(listItem, " "), ".") &&
					!strings.HasSuffix(listItem, "!") && !strings.HasSuffix(listItem, "?")
				if open && startsLowercase(stripped) {
					listItem += " " + stripped
					continue
				}
				flushListItem()
			}
			paragraph = append(paragraph, stripped)
		}
	}
	flushParagraph()
	flushListItem()
	return blocks
}

// normalizeRow collapses a table row's column gaps to single spaces for
// storage; the table_row tag preserves the structural information.
func normalizeRow(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

func startsLowercase(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

// abbreviations that do not terminate a sentence when followed by a period.
var abbreviations = map[string]bool{
	"e.g": true, "i.e": true, "etc": true, "no": true, "nos": true,
	"fig": true, "figs": true, "approx": true, "vs": true,
	"mr": true, "mrs": true, "ms": true, "dr": true, "capt": true,
	"lt": true, "cdr": true, "st": true, "ltd": true, "co": true,
}

// splitProse splits reconstructed paragraph text into sentences at terminal
// punctuation followed by whitespace and an upper-case or digit start,
// skipping known abbreviations and single-letter initials.
func splitProse(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Consume trailing closers: quotes, brackets.
		end := i
		for end+1 < len(runes) && strings.ContainsRune(`"')]`, runes[end+1]) {
			end++
		}

		// A boundary needs whitespace then an upper-case letter or digit.
		j := end + 1
		if j >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j >= len(runes) {
			break
		}
		if !unicode.IsUpper(runes[j]) && !unicode.IsDigit(runes[j]) {
			continue
		}

		if r == '.' && isAbbreviation(runes, i) {
			continue
		}

		s := strings.TrimSpace(string(runes[start : end+1]))
		if s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// isAbbreviation checks the token ending at the period at index i.
func isAbbreviation(runes []rune, i int) bool {
	w := i - 1
	for w >= 0 && (unicode.IsLetter(runes[w]) || runes[w] == '.') {
		w--
	}
	token := strings.ToLower(strings.TrimSuffix(string(runes[w+1:i]), "."))
	if token == "" {
		return false
	}
	if abbreviations[token] {
		return true
	}
	// Single-letter initials: "J. Smith".
	if len([]rune(token)) == 1 {
		return true
	}
	return false
}
