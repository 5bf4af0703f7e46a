package report

import (
	"regexp"
	"strings"
)

// Issue is a safety issue distilled from a conclusions section, carrying
// the positions of the sentences it was built from.
type Issue struct {
	Description string
	Subcategory string
	Positions   []int
}

var (
	issueSubcategoryRe = regexp.MustCompile(`^\d+\.\d+\s+(.+)$`)
	issueItemRe        = regexp.MustCompile(`^(\d+)[.)]\s+(.+)$`)
)

// ExtractIssues walks the typed sentences of a conclusions section and
// returns the numbered safety issues found there. Decimal subsection
// headings ("3.1 Safety issues directly contributing to the accident")
// set the subcategory for the items that follow; paragraph sentences
// immediately after an open item extend its description.
func ExtractIssues(sentences []Sentence) []Issue {
	var issues []Issue
	subcategory := ""
	open := -1

	for _, s := range sentences {
		switch s.Type {
		case TypeHeading:
			if m := issueSubcategoryRe.FindStringSubmatch(s.Text); m != nil {
				subcategory = strings.TrimSpace(m[1])
			}
			open = -1

		case TypeListItem:
			m := issueItemRe.FindStringSubmatch(s.Text)
			if m == nil {
				open = -1
				continue
			}
			issues = append(issues, Issue{
				Description: strings.TrimSpace(m[2]),
				Subcategory: subcategory,
				Positions:   []int{s.Position},
			})
			open = len(issues) - 1

		case TypeParagraph:
			if open >= 0 {
				iss := &issues[open]
				iss.Description += " " + s.Text
				iss.Positions = append(iss.Positions, s.Position)
			}

		default:
			open = -1
		}
	}
	return issues
}
