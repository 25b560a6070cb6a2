package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	got, err := SuffixExtractor{}.Extract("resume.txt", []byte("  hello world \n"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractUnsupportedSuffix(t *testing.T) {
	_, err := SuffixExtractor{}.Extract("photo.png", []byte{1, 2, 3})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><style>p{color:red}</style></head>
<body><h1>Skills</h1><p>Go and SQL</p><script>alert(1)</script></body></html>`
	got, err := SuffixExtractor{}.Extract("resume.html", []byte(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(got, "Skills") || !strings.Contains(got, "Go and SQL") {
		t.Errorf("missing body text: %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script/style leaked: %q", got)
	}
}

func TestExtractDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Experience</w:t></w:r></w:p>
<w:p><w:r><w:t>Built data</w:t></w:r><w:r><w:t> pipelines</w:t></w:r></w:p>
</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := SuffixExtractor{}.Extract("resume.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(got, "Experience") {
		t.Errorf("missing paragraph: %q", got)
	}
	if !strings.Contains(got, "Built data pipelines") {
		t.Errorf("runs not joined within paragraph: %q", got)
	}
}

func TestContentStreamText(t *testing.T) {
	stream := `BT /F1 12 Tf (Hello \(quoted\)) Tj [(Wor)(ld)] TJ ET`
	got := contentStreamText(stream)
	if !strings.Contains(got, "Hello (quoted)") {
		t.Errorf("escape handling wrong: %q", got)
	}
	if !strings.Contains(got, "Wor") || !strings.Contains(got, "ld") {
		t.Errorf("TJ array literals missing: %q", got)
	}
}
