package workflow

// State labels the lifecycle position of message processing, used in logs
// and audit detail so operators can see where a message stopped.
type State string

const (
	StateIdle                State = "IDLE"
	StatePolling             State = "POLLING"
	StateMessageFetched      State = "MESSAGE_FETCHED"
	StateAttachmentExtracted State = "ATTACHMENT_EXTRACTED"
	StateReviewed            State = "REVIEWED"
	StateNotifying           State = "NOTIFYING"
	StateLedgered            State = "LEDGERED"
	StateError               State = "ERROR"
)
