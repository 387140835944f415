package parser

import (
	"fmt"

	"ndaflow/pkg/platform/sentinel"
)

// Extraction failure reasons. "encrypted" is distinct so the workflow never
// confuses a password-protected contract with a non-NDA.
const (
	ReasonEncrypted = "encrypted"
	ReasonEmpty     = "empty"
	ReasonCorrupt   = "corrupt"
)

// ExtractionError reports that no strategy produced text from an attachment.
type ExtractionError struct {
	Reason string
	Detail string
}

func (e *ExtractionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed: %s: %s", e.Reason, e.Detail)
}

func (e *ExtractionError) Unwrap() error { return sentinel.ErrExtractionFailed }
