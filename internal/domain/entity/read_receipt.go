package entity

import "time"

// ReadReceipt records that a user has read a message. Receipts are unique per
// (message, user) pair and are never deleted except when their thread is.
type ReadReceipt struct {
	MessageID string    `json:"message_id" firestore:"messageId"`
	ThreadID  string    `json:"thread_id" firestore:"threadId"`
	UserID    string    `json:"user_id" firestore:"userId"`
	ReadAt    time.Time `json:"read_at" firestore:"readAt"`
}
