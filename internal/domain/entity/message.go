package entity

import "time"

type Message struct {
	ID       string `json:"id" firestore:"id"`
	ThreadID string `json:"thread" firestore:"threadId"`
	SenderID string `json:"sender_id" firestore:"senderId"`
	Content  string `json:"content" firestore:"content"`

	// Attachment is a self-describing data URI (data:<mime>;base64,<payload>).
	Attachment string `json:"attachment,omitempty" firestore:"attachment,omitempty"`

	// ClientMessageID is the caller-supplied idempotency key for a logical
	// send attempt. Echoed back on realtime frames so clients can correlate
	// an optimistic local message with its server copy.
	ClientMessageID string `json:"client_message_id,omitempty" firestore:"clientMessageId,omitempty"`

	// IsRead is a projection over the receipt table: true once any
	// participant other than the sender holds a receipt for this message.
	IsRead bool `json:"is_read" firestore:"-"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
