package report

import "strings"

// SectionSpan is one named, ordered top-level division of a report.
type SectionSpan struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// BodySection is the name given to the single implicit section of a
// document with no recognizable headings.
const BodySection = "Body"

// SplitSections partitions the full text into ordered sections at
// recognized heading lines. TOC entries never open sections; they stay in
// the text of whatever section they fall in. A document with no recognized
// headings yields exactly one section named Body spanning the whole text —
// never zero sections. Positions are assigned in encounter order from 0.
func SplitSections(fullText string) []SectionSpan {
	var sections []SectionSpan
	var current []string
	currentName := ""
	position := 0

	flush := func() {
		if currentName == "" {
			return
		}
		sections = append(sections, SectionSpan{
			Name:     currentName,
			Position: position,
			Text:     strings.TrimSpace(strings.Join(current, "\n")),
		})
		position++
	}

	for _, line := range strings.Split(fullText, "\n") {
		line = strings.TrimRight(line, " \t")
		stripped := strings.TrimSpace(line)

		// TOC entries echo headings; keep them as body text.
		if isTOCEntry(stripped) {
			current = append(current, line)
			continue
		}

		if name, ok := matchHeading(stripped); ok {
			flush()
			currentName = name
			current = current[:0]
			continue
		}

		current = append(current, line)
	}

	if currentName != "" {
		flush()
		return sections
	}

	// No recognized headings at all: one implicit Body section.
	return []SectionSpan{{
		Name:     BodySection,
		Position: 0,
		Text:     strings.TrimSpace(fullText),
	}}
}

// FindSection returns the first section whose name contains want
// (case-insensitive), or nil.
func FindSection(sections []SectionSpan, want string) *SectionSpan {
	want = strings.ToUpper(want)
	for i := range sections {
		if strings.Contains(strings.ToUpper(sections[i].Name), want) {
			return &sections[i]
		}
	}
	return nil
}
