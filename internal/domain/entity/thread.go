package entity

import "time"

// Thread types supported by the messaging API.
const (
	ThreadTypeBid     = "bid"
	ThreadTypeBooking = "booking"
	ThreadTypeGeneral = "general"
	ThreadTypeSupport = "support"
)

func IsValidThreadType(t string) bool {
	switch t {
	case ThreadTypeBid, ThreadTypeBooking, ThreadTypeGeneral, ThreadTypeSupport:
		return true
	}
	return false
}

type Thread struct {
	ID             string    `json:"id" firestore:"id"`
	ThreadType     string    `json:"thread_type" firestore:"threadType"`
	ParticipantIDs []string  `json:"participant_ids" firestore:"participantIds"`
	BidID          string    `json:"bid,omitempty" firestore:"bidId,omitempty"`
	BookingID      string    `json:"booking,omitempty" firestore:"bookingId,omitempty"`
	LastMessage    *Message  `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updated_at" firestore:"updatedAt"`

	// UnreadCount is derived per requesting user at read time, never stored.
	UnreadCount int `json:"unread_count" firestore:"-"`
}

func (t *Thread) HasParticipant(userID string) bool {
	for _, id := range t.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}
