package report

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthYearRe = regexp.MustCompile(`(?i)\b(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)\s+(\d{4})\b`)

	months = map[string]int{
		"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
		"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
		"august": 8, "aug": 8, "september": 9, "sept": 9, "sep": 9,
		"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
	}
)

// ExtractTitle picks a document title: the file metadata title when the
// producer set one, else a cover-page scan. The scan prefers the first
// substantial line mentioning "report" within the first 50 lines and falls
// back to the first line of plausible title length.
func ExtractTitle(fullText, metaTitle string) string {
	if t := strings.TrimSpace(metaTitle); t != "" {
		return t
	}

	lines := strings.Split(fullText, "\n")
	if len(lines) > 50 {
		lines = lines[:50]
	}

	fallback := ""
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 15 || len(line) > 200 {
			continue
		}
		if strings.Contains(strings.ToLower(line), "report") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}

// ExtractPublicationDate looks for a publication date near the start of the
// document: an ISO YYYY-MM-DD date first, then a "Month YYYY" mention mapped
// to the first of that month. Returns "" when neither appears.
func ExtractPublicationDate(fullText string) string {
	head := fullText
	if len(head) > 500 {
		head = head[:500]
	}

	if m := isoDateRe.FindStringSubmatch(head); m != nil {
		return m[0]
	}
	if m := monthYearRe.FindStringSubmatch(head); m != nil {
		month := months[strings.ToLower(m[1])]
		return fmt.Sprintf("%s-%02d-01", m[2], month)
	}
	return ""
}
