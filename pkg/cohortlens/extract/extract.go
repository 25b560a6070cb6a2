// Package extract turns stored document bytes into plain text, keyed by file
// suffix. Per-format fidelity (PDF page handling, DOCX paragraph order) lives
// in the format helpers; callers only see text or an error.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for suffixes no helper recognizes.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor is the text-extraction collaborator contract.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}

// SuffixExtractor dispatches on the file suffix of name.
type SuffixExtractor struct{}

func (SuffixExtractor) Extract(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return strings.TrimSpace(string(data)), nil
	case ".html", ".htm":
		return htmlText(data)
	case ".docx":
		return docxText(data)
	case ".pdf":
		return pdfText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
	}
}
