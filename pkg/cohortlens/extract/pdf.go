package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfText extracts page content streams with pdfcpu and decodes the literal
// strings of their text-showing operators (Tj/TJ). Layout is not preserved;
// the downstream stages only need the words.
func pdfText(data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "pdfextract")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	inFile := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return "", err
	}

	outDir := filepath.Join(dir, "content")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return "", err
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractContentFile(inFile, outDir, nil, cfg); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// Content files carry the page number in the name; lexical order keeps
	// pages in sequence for single-digit runs and close enough beyond.
	sort.Strings(names)

	var pages []string
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return "", err
		}
		if t := contentStreamText(string(raw)); t != "" {
			pages = append(pages, t)
		}
	}

	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

// contentStreamText pulls parenthesized string literals out of a decoded PDF
// content stream, honoring backslash escapes. Glyph positioning operators and
// hex strings are ignored.
func contentStreamText(stream string) string {
	var out strings.Builder
	var lit strings.Builder
	depth := 0
	escaped := false

	for i := 0; i < len(stream); i++ {
		c := stream[i]
		if depth == 0 {
			if c == '(' {
				depth = 1
			}
			continue
		}
		if escaped {
			switch c {
			case 'n':
				lit.WriteByte('\n')
			case 't':
				lit.WriteByte('\t')
			case '(', ')', '\\':
				lit.WriteByte(c)
			}
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			lit.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				if s := lit.String(); s != "" {
					out.WriteString(s)
					out.WriteByte(' ')
				}
				lit.Reset()
			} else {
				lit.WriteByte(c)
			}
		default:
			lit.WriteByte(c)
		}
	}

	return strings.TrimSpace(out.String())
}
