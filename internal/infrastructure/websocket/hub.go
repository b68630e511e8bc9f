package websocket

import (
	"sync"

	"prbal/pkg/logger"
)

// Hub is the per-thread fan-out registry: thread id -> set of open
// connections. Broadcasting only ever enqueues onto per-client buffered
// queues, so one slow connection cannot stall the others.
type Hub struct {
	mu      sync.RWMutex
	threads map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		threads: make(map[string]map[*Client]struct{}),
	}
}

// Register marks the client Open and subscribes it to its thread.
func (h *Hub) Register(c *Client) {
	c.open()

	h.mu.Lock()
	members, ok := h.threads[c.ThreadID]
	if !ok {
		members = make(map[*Client]struct{})
		h.threads[c.ThreadID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()

	logger.Info("WebSocket: user %s joined thread %s", c.UserID, c.ThreadID)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if members, ok := h.threads[c.ThreadID]; ok {
		if _, subscribed := members[c]; subscribed {
			delete(members, c)
			if len(members) == 0 {
				delete(h.threads, c.ThreadID)
			}
			logger.Info("WebSocket: user %s left thread %s", c.UserID, c.ThreadID)
		}
	}
	h.mu.Unlock()
}

// Broadcast enqueues a frame to every open connection on the thread.
func (h *Hub) Broadcast(threadID string, frame []byte) {
	for _, c := range h.members(threadID) {
		c.enqueue(frame)
	}
}

// BroadcastExcept enqueues a frame to every open connection on the thread
// except those belonging to exceptUserID.
func (h *Hub) BroadcastExcept(threadID, exceptUserID string, frame []byte) {
	for _, c := range h.members(threadID) {
		if c.UserID == exceptUserID {
			continue
		}
		c.enqueue(frame)
	}
}

// members snapshots the subscriber set so enqueueing happens outside the
// registry lock.
func (h *Hub) members(threadID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.threads[threadID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
