package domain

// Message is one incoming event from the messaging network. It is read-only
// inside the engine and not retained beyond the handling of one event.
type Message struct {
	ID         int
	SourceChat int64
	SenderID   int64 // 0 when the network does not expose a sender
	Text       string
	HasMedia   bool
	Formatted  bool // carries rich-text entities
}

// EntityInfo is the raw display metadata the network returns for a chat or
// user. Channels and groups carry a Title; users carry name parts.
type EntityInfo struct {
	Title     string
	FirstName string
	LastName  string
}

// ErrorKind classifies a failed delivery attempt.
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorSendFailed  ErrorKind = "send_failed"
)

// DeliveryOutcome is the per-target result of one fan-out attempt. It is
// consumed for logging and metrics only, never persisted.
type DeliveryOutcome struct {
	Target  int64
	Success bool
	Kind    ErrorKind
}
