// Package reconcile merges REST-fetched message history with the realtime
// event stream into a single ordered, deduplicated view. It is the one piece
// of the messaging core that runs inside the client rather than the server.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"prbal/internal/domain/entity"
)

// defaultMatchWindow bounds the timestamp-based fallback used to pair an
// optimistic send with its server echo when no correlation id round-tripped.
const defaultMatchWindow = 5 * time.Second

type pendingMessage struct {
	localID string
	message *entity.Message
	sentAt  time.Time
}

// Timeline is a local ordered set of messages keyed by server-assigned id.
// History pages and realtime events both go through upserts, so replaying an
// event after a reconnect never produces a duplicate entry.
type Timeline struct {
	mu          sync.Mutex
	byID        map[string]*entity.Message
	pending     []pendingMessage
	matchWindow time.Duration
}

func NewTimeline() *Timeline {
	return &Timeline{
		byID:        make(map[string]*entity.Message),
		matchWindow: defaultMatchWindow,
	}
}

// ApplyHistory upserts a REST-fetched page of messages.
func (t *Timeline) ApplyHistory(messages []*entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range messages {
		t.applyLocked(m)
	}
}

// ApplyEvent upserts a single realtime message event. The server-assigned id
// is the key, never the client's optimistic one; a pending optimistic entry
// matching the event is replaced rather than duplicated.
func (t *Timeline) ApplyEvent(message *entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.applyLocked(message)
}

// AddPending records an optimistic message shown in the UI before the server
// echo arrives. localID is the client-generated correlation id carried in the
// outbound send as client_message_id.
func (t *Timeline) AddPending(localID string, message *entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = append(t.pending, pendingMessage{
		localID: localID,
		message: message,
		sentAt:  time.Now(),
	})
}

// Messages returns the merged view, ascending by creation time with pending
// optimistic sends appended after all confirmed messages.
func (t *Timeline) Messages() []*entity.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*entity.Message, 0, len(t.byID)+len(t.pending))
	for _, m := range t.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	for _, p := range t.pending {
		out = append(out, p.message)
	}
	return out
}

// Len reports the number of confirmed messages in the view.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

func (t *Timeline) applyLocked(m *entity.Message) {
	t.resolvePendingLocked(m)
	t.byID[m.ID] = m
}

// resolvePendingLocked drops the optimistic entry confirmed by m: first by
// echoed correlation id, then by (sender, content, approximate send time).
func (t *Timeline) resolvePendingLocked(m *entity.Message) {
	for i, p := range t.pending {
		if m.ClientMessageID != "" && p.localID == m.ClientMessageID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}

	for i, p := range t.pending {
		if p.message.SenderID != m.SenderID || p.message.Content != m.Content {
			continue
		}
		delta := m.CreatedAt.Sub(p.sentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= t.matchWindow {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}
