package websocket

import (
	"context"
	"encoding/json"
	"time"

	"prbal/internal/domain/entity"
	"prbal/internal/usecase"
	"prbal/pkg/logger"
)

// Frame type discriminators shared by both directions of the protocol.
const (
	FrameTypeMessage     = "message"
	FrameTypeTyping      = "typing"
	FrameTypeReadReceipt = "read_receipt"
	FrameTypeError       = "error"
)

// inboundFrame is the union of everything a client may send on a thread
// channel.
type inboundFrame struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	Attachment      string `json:"attachment,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	IsTyping        bool   `json:"is_typing"`
	MessageID       string `json:"message_id"`
}

type messageFrame struct {
	Type            string          `json:"type"`
	Message         *entity.Message `json:"message"`
	ClientMessageID string          `json:"client_message_id,omitempty"`
	Timestamp       string          `json:"timestamp"`
}

type typingFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
	Timestamp string `json:"timestamp"`
}

type readReceiptFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Gateway dispatches inbound frames to the messaging usecases and fans
// persisted events back out through the hub. It is the usecase layer's
// Broadcaster, so REST-created messages reach connected clients the same way
// socket-sent ones do.
type Gateway struct {
	hub       *Hub
	threadUC  *usecase.ThreadUseCase
	messageUC *usecase.MessageUseCase
}

func NewGateway(hub *Hub, threadUC *usecase.ThreadUseCase, messageUC *usecase.MessageUseCase) *Gateway {
	return &Gateway{
		hub:       hub,
		threadUC:  threadUC,
		messageUC: messageUC,
	}
}

func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Authorize checks that userID may open a channel on threadID. Failure means
// the connection goes straight to Closed, never Open.
func (g *Gateway) Authorize(ctx context.Context, userID, threadID string) error {
	_, err := g.threadUC.GetThread(ctx, userID, threadID)
	return err
}

// HandleFrame processes one inbound frame from an open connection. A
// malformed or unknown frame earns the sender an error frame but does not
// close the connection.
func (g *Gateway) HandleFrame(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("WebSocket: unparseable frame from user %s on thread %s: %v", c.UserID, c.ThreadID, err)
		g.sendError(c, "BAD_FRAME", "Invalid frame format")
		return
	}

	switch frame.Type {
	case FrameTypeMessage:
		g.handleMessage(c, frame)
	case FrameTypeTyping:
		g.handleTyping(c, frame)
	case FrameTypeReadReceipt:
		g.handleReadReceipt(c, frame)
	default:
		g.sendError(c, "UNKNOWN_FRAME", "Unknown frame type: "+frame.Type)
	}
}

// handleMessage persists first, then fans out. The broadcast happens inside
// SendMessage via the Broadcaster hookup and reaches the sender's own
// connection too, so the client reconciles against the authoritative copy
// rather than its optimistic echo. Persistence failure is reported only to
// the sender; retrying is the client's call.
func (g *Gateway) handleMessage(c *Client, frame inboundFrame) {
	_, err := g.messageUC.SendMessage(context.Background(), c.UserID, usecase.SendMessageInput{
		ThreadID:        c.ThreadID,
		Content:         frame.Message,
		Attachment:      frame.Attachment,
		ClientMessageID: frame.ClientMessageID,
	})
	if err != nil {
		logger.Error("WebSocket: failed to persist message from user %s on thread %s: %v", c.UserID, c.ThreadID, err)
		g.sendError(c, "SEND_FAILED", err.Error())
	}
}

// Typing indicators are ephemeral: forwarded to the other participants,
// never persisted, never echoed back to the sender.
func (g *Gateway) handleTyping(c *Client, frame inboundFrame) {
	g.hub.BroadcastExcept(c.ThreadID, c.UserID, mustMarshal(typingFrame{
		Type:      FrameTypeTyping,
		UserID:    c.UserID,
		IsTyping:  frame.IsTyping,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))
}

func (g *Gateway) handleReadReceipt(c *Client, frame inboundFrame) {
	if frame.MessageID == "" {
		g.sendError(c, "BAD_FRAME", "read_receipt requires message_id")
		return
	}

	result, err := g.messageUC.MarkRead(context.Background(), c.UserID, []string{frame.MessageID})
	if err != nil {
		g.sendError(c, "RECEIPT_FAILED", err.Error())
		return
	}
	if reason, failed := result.FailedReason(frame.MessageID); failed {
		g.sendError(c, "RECEIPT_FAILED", reason)
	}
}

// BroadcastMessage implements usecase.Broadcaster.
func (g *Gateway) BroadcastMessage(threadID string, message *entity.Message) {
	g.hub.Broadcast(threadID, mustMarshal(messageFrame{
		Type:            FrameTypeMessage,
		Message:         message,
		ClientMessageID: message.ClientMessageID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}))
}

// BroadcastReadReceipt implements usecase.Broadcaster. The reader's own
// connections are skipped; they already know.
func (g *Gateway) BroadcastReadReceipt(threadID, messageID, readerID string) {
	g.hub.BroadcastExcept(threadID, readerID, mustMarshal(readReceiptFrame{
		Type:      FrameTypeReadReceipt,
		MessageID: messageID,
		UserID:    readerID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))
}

func (g *Gateway) sendError(c *Client, code, message string) {
	c.enqueue(mustMarshal(errorFrame{
		Type:      FrameTypeError,
		Code:      code,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))
}

func mustMarshal(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Error("WebSocket: failed to marshal frame: %v", err)
		return []byte(`{"type":"error","error":"internal encoding failure"}`)
	}
	return raw
}
