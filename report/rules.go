// Package report turns the raw text of a marine incident report into its
// structural parts: named sections, typed sentences, safety issues,
// recommendations and the particulars metadata record.
//
// Every function here is pure: text in, structured values out. Persistence
// and transaction handling live in the ingest package.
package report

import (
	"regexp"
	"strings"
)

// headingRule maps a top-level heading pattern to the section name it opens.
// Rules are evaluated in order by matchHeading; the first match wins.
type headingRule struct {
	re   *regexp.Regexp
	name func(m []string) string
}

func fixed(name string) func([]string) string {
	return func([]string) string { return name }
}

// headingRules is the ordered registry of recognized section headings.
var headingRules = []headingRule{
	{regexp.MustCompile(`(?i)^SECTION\s+\d+\s*[–—-]\s+(.+?)\s*$`), func(m []string) string {
		return strings.ToUpper(strings.TrimSpace(m[1]))
	}},
	{regexp.MustCompile(`(?i)^SYNOPSIS\s*$`), fixed("SYNOPSIS")},
	{regexp.MustCompile(`(?i)^GLOSSARY OF ABBREVIATIONS AND ACRONYMS\s*$`), fixed("GLOSSARY")},
	{regexp.MustCompile(`(?i)^CONCLUSIONS\s*$`), fixed("CONCLUSIONS")},
	{regexp.MustCompile(`(?i)^RECOMMENDATIONS\s*$`), fixed("RECOMMENDATIONS")},
}

// matchHeading reports whether line opens a new top-level section and, if
// so, the section name.
func matchHeading(line string) (string, bool) {
	for _, r := range headingRules {
		if m := r.re.FindStringSubmatch(line); m != nil {
			return r.name(m), true
		}
	}
	return "", false
}

var tocPageRe = regexp.MustCompile(`\s\d{1,3}[a-z]?\s*$`)

// isTOCEntry reports whether a line looks like a table-of-contents entry:
// short text ending in a 1-3 digit page number (optionally suffixed with a
// letter, e.g. "18a"), with real text before the number. Figure captions
// are excluded. TOC entries echo section headings and must never open a
// section of their own.
func isTOCEntry(line string) bool {
	if len(line) > 150 {
		return false
	}
	if !tocPageRe.MatchString(line) {
		return false
	}
	before := strings.TrimSpace(tocPageRe.ReplaceAllString(line, ""))
	if len(before) < 3 {
		return false
	}
	if strings.HasPrefix(strings.ToLower(line), "figure") {
		return false
	}
	return true
}
