package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"ndaflow/pkg/platform/sentinel"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
	// Password-protected OOXML files are repackaged as OLE compound
	// documents, so the zip magic disappears and this one shows up.
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// strategy is the uniform contract every extraction backend implements.
// Strategies are tried in priority order until one yields text.
type strategy interface {
	name() string
	extract(data []byte) (text string, pages int, err error)
}

var (
	pdfStrategies  = []strategy{primaryPDF{}, fallbackPDF{}}
	docxStrategies = []strategy{docxStrategy{}}
)

// Parse converts a raw attachment into a normalized Document. It fails with
// sentinel.ErrUnsupportedFormat when the file is neither PDF nor DOCX, and
// with an ExtractionError (wrapping sentinel.ErrExtractionFailed) when every
// strategy for the detected format comes up empty.
func Parse(data []byte, filename string) (*Document, error) {
	format := DetectFormat(data, filename)
	if format == FormatUnknown {
		return nil, fmt.Errorf("parse %s: %w", filename, sentinel.ErrUnsupportedFormat)
	}
	if encrypted(data, format) {
		return nil, &ExtractionError{Reason: ReasonEncrypted, Detail: filename}
	}

	strategies := pdfStrategies
	if format == FormatDOCX {
		strategies = docxStrategies
	}

	var lastErr error
	for _, s := range strategies {
		text, pages, err := runStrategy(s, data)
		if err != nil {
			lastErr = err
			continue
		}
		text = normalize(text)
		if text == "" {
			// A structurally valid DOCX with no text is usually image-only
			// scanned content: report it as a degraded document, not a
			// failure, so the workflow records what happened.
			if format == FormatDOCX {
				return &Document{
					SourcePath:       filename,
					Format:           format,
					ExtractionMethod: s.name(),
					PageCount:        pages,
					Warnings:         []string{"no extractable text; document may contain only embedded images"},
				}, nil
			}
			lastErr = fmt.Errorf("%s: no extractable text", s.name())
			continue
		}
		return &Document{
			SourcePath:       filename,
			Format:           format,
			RawText:          text,
			ExtractionMethod: s.name(),
			PageCount:        pages,
		}, nil
	}

	reason := ReasonEmpty
	detail := ""
	if lastErr != nil {
		detail = lastErr.Error()
		if !strings.Contains(detail, "no extractable text") {
			reason = ReasonCorrupt
		}
	}
	return nil, &ExtractionError{Reason: reason, Detail: detail}
}

// DetectFormat sniffs content first and falls back to the file extension, so
// a mislabelled attachment still routes to the right strategy list.
func DetectFormat(data []byte, filename string) Format {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF
	case bytes.HasPrefix(data, zipMagic):
		return FormatDOCX
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	}
	return FormatUnknown
}

// Supported reports whether a filename looks like a document we can parse.
// The orchestrator uses it to select attachments before fetching bytes into
// the pipeline.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}

func encrypted(data []byte, format Format) bool {
	switch format {
	case FormatPDF:
		return bytes.Contains(data, []byte("/Encrypt"))
	case FormatDOCX:
		return bytes.HasPrefix(data, oleMagic)
	}
	return false
}

// runStrategy isolates a single extraction attempt. The PDF libraries panic
// on some malformed cross-reference tables; a panic here counts as that
// strategy failing, not the process dying.
func runStrategy(s strategy, data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = fmt.Errorf("%s: panic: %v", s.name(), r)
		}
	}()
	return s.extract(data)
}

// normalize collapses whitespace runs so keyword matching sees consistent
// token boundaries regardless of the source layout engine.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
