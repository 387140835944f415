package sentinel

import "errors"

// Sentinel errors for infrastructure and document facts. Parsers, stores, and
// transports return these (optionally wrapped) so the workflow can translate
// them into ledger outcomes without inspecting error strings.
//
// These represent factual states, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrUnsupportedFormat: attachment is neither PDF nor DOCX
// - ErrExtractionFailed: every extraction strategy produced no text
// - ErrInvalidPolicy: review policy failed structural validation
// - ErrTransport: mail fetch or send failure
// - ErrLedgerWrite: durable ledger append failed
//
// ErrInvalidPolicy is startup-fatal; the document-level errors are not.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrInvalidPolicy     = errors.New("invalid policy")
	ErrTransport         = errors.New("transport failure")
	ErrLedgerWrite       = errors.New("ledger write failed")
)
