package parser

// Format identifies the attachment container type.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatUnknown Format = "unknown"
)

// Document is the normalized output of parsing one attachment. It is a value
// object: created once by Parse, never mutated afterwards.
type Document struct {
	SourcePath       string
	Format           Format
	RawText          string
	ExtractionMethod string
	PageCount        int
	// Warnings records degraded-extraction conditions, e.g. scanned-image
	// pages with no extractable text. The reviewer lowers confidence on them.
	Warnings []string
}

// Degraded reports whether the text came from a fallback strategy or carried
// warnings, so confidence scoring can weight it lower.
func (d *Document) Degraded() bool {
	return d.ExtractionMethod == methodPDFFallback || len(d.Warnings) > 0
}
