package docpdf

import "strings"

// extractText handles plain-text uploads: normalize line endings, trim
// trailing whitespace per line, single "page".
func extractText(data []byte) (*Raw, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	cleaned := strings.TrimSpace(strings.Join(lines, "\n"))

	raw := &Raw{Pages: []string{cleaned}, Meta: FileMeta{PageCount: 1}}
	if first := firstLine(cleaned); first != "" {
		raw.Meta.Title = first
	}
	return raw, nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return ""
}
