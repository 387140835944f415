package parser

import (
	"bytes"
	"fmt"
	"strings"

	dslipak "github.com/dslipak/pdf"
	ledongthuc "github.com/ledongthuc/pdf"
)

const (
	methodPDFPrimary  = "pdf_primary"
	methodPDFFallback = "pdf_fallback"
)

// primaryPDF extracts per page with ledongthuc/pdf. Pages that fail to
// decode are skipped rather than failing the whole document; the strategy
// only errors when the reader itself cannot open the file.
type primaryPDF struct{}

func (primaryPDF) name() string { return methodPDFPrimary }

func (primaryPDF) extract(data []byte) (string, int, error) {
	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%s: open: %w", methodPDFPrimary, err)
	}

	total := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), total, nil
}

// fallbackPDF runs the dslipak fork, whose diverging xref and lexer fixes
// recover some documents the primary rejects.
type fallbackPDF struct{}

func (fallbackPDF) name() string { return methodPDFFallback }

func (fallbackPDF) extract(data []byte) (string, int, error) {
	r, err := dslipak.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%s: open: %w", methodPDFFallback, err)
	}
	body, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("%s: plain text: %w", methodPDFFallback, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return "", 0, fmt.Errorf("%s: read: %w", methodPDFFallback, err)
	}
	return buf.String(), r.NumPage(), nil
}
