package docpdf

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractHTML extracts text from an HTML notice. Block-level elements break
// lines; tables emit one line per row with a two-space gap between cells so
// the key-value scanner can pick them up. The whole document becomes a
// single "page".
func extractHTML(data []byte) (*Raw, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	raw := &Raw{Meta: FileMeta{Title: findHTMLTitle(doc), PageCount: 1}}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head, atom.Nav:
				return
			case atom.Tr:
				if row := collectRow(n); row != "" {
					lines = append(lines, row)
				}
				return
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
				atom.P, atom.Li:
				if text := collectText(n); text != "" {
					lines = append(lines, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(lines) == 0 {
		if text := collectText(doc); text != "" {
			lines = append(lines, text)
		}
	}

	raw.Pages = []string{strings.Join(lines, "\n")}
	return raw, nil
}

func findHTMLTitle(doc *html.Node) string {
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = collectText(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// collectRow joins a table row's cells with a two-space column gap.
func collectRow(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			if text := collectText(c); text != "" {
				cells = append(cells, text)
			}
		}
	}
	return strings.Join(cells, "  ")
}

// collectText gathers all text beneath n, whitespace-normalized.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

