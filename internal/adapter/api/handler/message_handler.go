package handler

import (
	"github.com/labstack/echo/v4"

	"prbal/internal/usecase"
	"prbal/pkg/errors"
	"prbal/pkg/response"
)

type MessageHandler struct {
	messageUseCase *usecase.MessageUseCase
}

func NewMessageHandler(messageUseCase *usecase.MessageUseCase) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
	}
}

type sendMessageRequest struct {
	ThreadID        string `json:"thread" validate:"required"`
	Content         string `json:"content"`
	Attachment      string `json:"attachment,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type updateMessageRequest struct {
	Content    string `json:"content"`
	Attachment string `json:"attachment,omitempty"`
}

type markAsReadRequest struct {
	MessageIDs      []string `json:"message_ids"`
	MarkAllInThread bool     `json:"mark_all_in_thread"`
	ThreadID        string   `json:"thread_id"`
}

// SendMessage persists a message over REST. Delivery to connected websocket
// clients happens through the same broadcast path as websocket sends.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messageUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ThreadID:        req.ThreadID,
		Content:         req.Content,
		Attachment:      req.Attachment,
		ClientMessageID: req.ClientMessageID,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

func (h *MessageHandler) GetMessage(c echo.Context) error {
	userID := c.Get("uid").(string)
	messageID := c.Param("id")

	message, err := h.messageUseCase.GetMessage(c.Request().Context(), userID, messageID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *MessageHandler) UpdateMessage(c echo.Context) error {
	var req updateMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	messageID := c.Param("id")

	message, err := h.messageUseCase.UpdateMessage(c.Request().Context(), userID, messageID, usecase.UpdateMessageInput{
		Content:    req.Content,
		Attachment: req.Attachment,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	userID := c.Get("uid").(string)
	messageID := c.Param("id")

	if err := h.messageUseCase.DeleteMessage(c.Request().Context(), userID, messageID); err != nil {
		return response.Error(c, err)
	}

	return response.NoContent(c)
}

// ListReceipts reports who has read a message.
func (h *MessageHandler) ListReceipts(c echo.Context) error {
	userID := c.Get("uid").(string)
	messageID := c.Param("id")

	receipts, err := h.messageUseCase.ListReceipts(c.Request().Context(), userID, messageID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, receipts)
}

// MarkAsRead records read receipts for a batch of messages, or for every
// unread message in a thread when mark_all_in_thread is set. Per-message
// failures do not abort the batch; they come back in the failed map.
func (h *MessageHandler) MarkAsRead(c echo.Context) error {
	var req markAsReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	if req.MarkAllInThread {
		if req.ThreadID == "" {
			return response.Error(c, errors.Validation("thread_id is required when mark_all_in_thread is set", nil))
		}
		result, err := h.messageUseCase.MarkAllReadInThread(c.Request().Context(), userID, req.ThreadID)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, result)
	}

	if len(req.MessageIDs) == 0 {
		return response.Error(c, errors.Validation("message_ids must not be empty", nil))
	}

	result, err := h.messageUseCase.MarkRead(c.Request().Context(), userID, req.MessageIDs)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}

// UnreadCount reports the caller's unread totals. With a thread_id query
// param it scopes the count to that thread, otherwise it returns the overall
// total plus a per-thread breakdown.
func (h *MessageHandler) UnreadCount(c echo.Context) error {
	userID := c.Get("uid").(string)

	result, err := h.messageUseCase.UnreadCount(c.Request().Context(), userID, c.QueryParam("thread_id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}
