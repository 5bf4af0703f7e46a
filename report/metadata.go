package report

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/chirp/docpdf"
)

// ReportMetadata is the structured summary extracted from a report's
// particulars table and file metadata. Every field is optional.
type ReportMetadata struct {
	VesselName       string `json:"vessel_name,omitempty"`
	VesselType       string `json:"vessel_type,omitempty"`
	AccidentDate     string `json:"accident_date,omitempty"`
	AccidentLocation string `json:"accident_location,omitempty"`
	AccidentType     string `json:"accident_type,omitempty"`
	Severity         string `json:"severity,omitempty"`
	LossOfLife       string `json:"loss_of_life,omitempty"`
	PortOfOrigin     string `json:"port_of_origin,omitempty"`
	Destination      string `json:"destination,omitempty"`
	PageCount        int    `json:"page_count,omitempty"`
	Subject          string `json:"subject,omitempty"`
}

type metadataRule struct {
	re     *regexp.Regexp
	assign func(*ReportMetadata, string)
}

// metadataRules maps recognized particulars-table keys to metadata fields.
// Evaluated in order against each row's key; the first rule matching a
// given field wins, later rows for the same field are ignored.
var metadataRules = []metadataRule{
	{regexp.MustCompile(`(?i)vessel'?s?\s*name|^ship'?s?\s*name|^name\s+of\s+(?:vessel|ship)`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.VesselName, v) }},
	{regexp.MustCompile(`(?i)(?:vessel|ship)\s*type|type\s+of\s+(?:vessel|ship)`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.VesselType, v) }},
	{regexp.MustCompile(`(?i)date\s*(?:and\s*time\s*)?of\s*(?:the\s*)?(?:accident|incident|occurrence)|accident\s*date`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.AccidentDate, v) }},
	{regexp.MustCompile(`(?i)(?:location|place|position)\s*of\s*(?:the\s*)?(?:accident|incident|occurrence)|^location$`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.AccidentLocation, v) }},
	{regexp.MustCompile(`(?i)type\s*of\s*(?:accident|incident|occurrence)|accident\s*(?:type|category)`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.AccidentType, v) }},
	{regexp.MustCompile(`(?i)severity|extent\s*of\s*damage`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.Severity, v) }},
	{regexp.MustCompile(`(?i)loss\s*of\s*life|injuries|fatalities|persons?\s*(?:injured|killed)`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.LossOfLife, v) }},
	{regexp.MustCompile(`(?i)port\s*of\s*(?:origin|departure)|departed\s*from|^from$`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.PortOfOrigin, v) }},
	{regexp.MustCompile(`(?i)(?:port\s*of\s*)?destination|bound\s*for|^to$`),
		func(m *ReportMetadata, v string) { setIfEmpty(&m.Destination, v) }},
}

func setIfEmpty(field *string, v string) {
	if *field == "" {
		*field = strings.TrimSpace(v)
	}
}

// MapMetadata maps key-value rows from the particulars pages onto the
// structured metadata record, then folds in page count and subject from the
// file metadata. Unrecognized keys are ignored, missing fields stay unset.
func MapMetadata(rows []docpdf.KeyValueRow, meta docpdf.FileMeta) ReportMetadata {
	var out ReportMetadata
	for _, row := range rows {
		for _, rule := range metadataRules {
			if rule.re.MatchString(row.Key) {
				rule.assign(&out, row.Value)
				break
			}
		}
	}
	out.PageCount = meta.PageCount
	out.Subject = strings.TrimSpace(meta.Subject)
	return out
}

// IsEmpty reports whether no field carries a value, so callers can skip the
// metadata row entirely.
func (m ReportMetadata) IsEmpty() bool {
	return m == ReportMetadata{}
}
