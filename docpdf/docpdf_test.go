package docpdf

import (
	"context"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	ex := New(Config{})

	tests := []struct {
		name     string
		data     string
		filename string
		format   Format
	}{
		{"pdf magic", "%PDF-1.7 rest", "anything.bin", FormatPDF},
		{"pdf extension", "binary junk", "report.pdf", FormatPDF},
		{"html doctype", "<!DOCTYPE html><html></html>", "page.bin", FormatHTML},
		{"html tag", "<html><body>x</body></html>", "notice", FormatHTML},
		{"txt extension", "plain words", "notes.txt", FormatTXT},
		{"no extension", "plain words", "notes", FormatTXT},
	}

	for _, tt := range tests {
		f, err := ex.Detect([]byte(tt.data), tt.filename)
		if err != nil {
			t.Errorf("%s: Detect: %v", tt.name, err)
			continue
		}
		if f != tt.format {
			t.Errorf("%s: Detect = %q, want %q", tt.name, f, tt.format)
		}
	}

	if _, err := ex.Detect([]byte("junk"), "file.xyz"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtractText(t *testing.T) {
	ex := New(Config{})
	raw, err := ex.Extract(context.Background(), []byte("SAFETY NOTICE\r\nSome line here.  \r\n"), "notice.txt")
	if err != nil {
		t.Fatal(err)
	}
	if raw.Format != FormatTXT {
		t.Fatalf("format = %s, want txt", raw.Format)
	}
	if raw.Meta.Title != "SAFETY NOTICE" {
		t.Errorf("title = %q", raw.Meta.Title)
	}
	if !strings.Contains(raw.FullText, "Some line here.") {
		t.Errorf("full text missing content: %q", raw.FullText)
	}
	if strings.Contains(raw.FullText, "\r") {
		t.Error("carriage returns not normalized")
	}
}

func TestExtractEmptyFails(t *testing.T) {
	ex := New(Config{})
	if _, err := ex.Extract(context.Background(), []byte("   \n  \n"), "empty.txt"); err == nil {
		t.Error("expected error for document with no text")
	}
}

func TestExtractTooLarge(t *testing.T) {
	ex := New(Config{MaxFileSize: 8})
	if _, err := ex.Extract(context.Background(), []byte("0123456789"), "big.txt"); err == nil {
		t.Error("expected size error")
	}
}

func TestExtractHTML(t *testing.T) {
	ex := New(Config{})
	page := `<!DOCTYPE html>
<html><head><title>Grounding of MV Example</title></head>
<body>
<h1>SYNOPSIS</h1>
<p>The vessel grounded at dawn.</p>
<table>
<tr><td>Vessel name</td><td>MV Example</td></tr>
<tr><td>Vessel type</td><td>Bulk carrier</td></tr>
</table>
</body></html>`

	raw, err := ex.Extract(context.Background(), []byte(page), "notice.html")
	if err != nil {
		t.Fatal(err)
	}
	if raw.Meta.Title != "Grounding of MV Example" {
		t.Errorf("title = %q", raw.Meta.Title)
	}
	if !strings.Contains(raw.FullText, "SYNOPSIS") {
		t.Errorf("missing heading: %q", raw.FullText)
	}
	if !strings.Contains(raw.FullText, "Vessel name  MV Example") {
		t.Errorf("table row not gap-joined: %q", raw.FullText)
	}
}

func TestCleanPageTextKeepsColumnGaps(t *testing.T) {
	got := cleanPageText("Vessel name     MV Example\nA normal    sentence here\nsingle space line")
	lines := strings.Split(got, "\n")
	if lines[0] != "Vessel name  MV Example" {
		t.Errorf("wide gap collapsed wrong: %q", lines[0])
	}
	if lines[1] != "A normal  sentence here" {
		t.Errorf("unexpected: %q", lines[1])
	}
	if lines[2] != "single space line" {
		t.Errorf("single space mangled: %q", lines[2])
	}
}

func TestKeyValueRows(t *testing.T) {
	pages := []string{
		"REPORT ON THE GROUNDING\nOCTOBER 2025",
		"Vessel name:  MV Example\nVessel type:  Bulk carrier\nDate of accident:  12 March 2025\nLocation  Dover Strait\nLoss of life:  None",
		"body text",
		"more body",
	}

	rows := KeyValueRows(pages)
	want := map[string]string{
		"Vessel name":      "MV Example",
		"Vessel type":      "Bulk carrier",
		"Date of accident": "12 March 2025",
		"Location":         "Dover Strait",
	}
	got := map[string]string{}
	for _, r := range rows {
		got[r.Key] = r.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("row %q = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["Loss of life"]; ok {
		t.Error("empty value 'None' should be skipped")
	}
}

func TestKeyValueRowsJoinsContinuation(t *testing.T) {
	pages := []string{
		"Accident type:  Collision with\nmoored vessel at berth",
		"second page",
	}
	rows := KeyValueRows(pages)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Value != "Collision with moored vessel at berth" {
		t.Errorf("continuation not joined: %q", rows[0].Value)
	}
}
