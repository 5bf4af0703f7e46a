package report

import (
	"regexp"
	"strings"
)

// Recommendation is a coded action item addressed to an organisation. The
// organisation may stay empty when no addressee pattern matches; the code
// and text are still kept.
type Recommendation struct {
	Code         string
	Text         string
	Organisation string
	Positions    []int
}

var (
	recCodeRe = regexp.MustCompile(`\b(\d{4}/\d{1,4})\b`)

	// Addressee patterns, tried in order against the accumulated text.
	recOrgRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(.*?\S)\s+(?:is|are)\s+recommended\s+to\b`),
		regexp.MustCompile(`(?i)\brecommended\s+that\s+(.+?)\s+(?:should|review|ensure|consider|amend|develop|provide|take)\b`),
		regexp.MustCompile(`(?i)^Recommendation(?:s)?\s+(?:is|are)?\s*(?:made|addressed)\s+to\s+(.+?)(?:\s+to\b|[.:])`),
	}
)

// ExtractRecommendations walks the typed sentences of a recommendations
// section. A sentence containing a reference code of the form YYYY/nnn
// opens a recommendation; subsequent sentences without a code extend its
// text until the next code or a heading.
func ExtractRecommendations(sentences []Sentence) []Recommendation {
	var recs []Recommendation
	open := -1

	for _, s := range sentences {
		if s.Type == TypeHeading {
			open = -1
			continue
		}

		m := recCodeRe.FindStringSubmatch(s.Text)
		if m != nil {
			text := strings.TrimSpace(strings.TrimPrefix(s.Text, m[0]))
			recs = append(recs, Recommendation{
				Code:      m[1],
				Text:      text,
				Positions: []int{s.Position},
			})
			open = len(recs) - 1
			continue
		}

		if open >= 0 {
			rec := &recs[open]
			if rec.Text == "" {
				rec.Text = s.Text
			} else {
				rec.Text += " " + s.Text
			}
			rec.Positions = append(rec.Positions, s.Position)
		}
	}

	for i := range recs {
		recs[i].Organisation = findOrganisation(recs[i].Text)
	}
	return recs
}

func findOrganisation(text string) string {
	for _, re := range recOrgRes {
		if m := re.FindStringSubmatch(text); m != nil {
			org := strings.TrimSpace(m[1])
			org = strings.Trim(org, ",;:")
			if org != "" && len(org) <= 120 {
				return org
			}
		}
	}
	return ""
}
