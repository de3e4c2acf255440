package store

// Message delivery states. A message starts pending the instant a send is
// accepted, then moves to confirmed or failed exactly once. There is no
// failed -> pending transition; a resend is a new message.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Conversation is the per-peer summary row backing the conversation list.
type Conversation struct {
	ID                 string
	PeerAddress        string
	LastMessageTime    int64
	LastMessagePreview string
	UnreadCount        int
}

// Message is one stored chat message.
type Message struct {
	LocalID          int64
	ConversationID   string
	SenderAddress    string
	RecipientAddress string
	Content          string
	Timestamp        int64
	Status           string
	// RemoteID is the remote-log key once the entry is acknowledged or
	// admitted; empty while pending or in local-only operation.
	RemoteID string
	// Signature is the hex signature envelope; empty for purely local rows.
	Signature string
}
