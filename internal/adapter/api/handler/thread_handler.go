package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"prbal/internal/usecase"
	"prbal/pkg/errors"
	"prbal/pkg/response"
	"prbal/pkg/utils"
)

type ThreadHandler struct {
	threadUseCase  *usecase.ThreadUseCase
	messageUseCase *usecase.MessageUseCase
}

func NewThreadHandler(threadUseCase *usecase.ThreadUseCase, messageUseCase *usecase.MessageUseCase) *ThreadHandler {
	return &ThreadHandler{
		threadUseCase:  threadUseCase,
		messageUseCase: messageUseCase,
	}
}

type createThreadRequest struct {
	ThreadType     string   `json:"thread_type" validate:"required,oneof=bid booking general support"`
	ParticipantIDs []string `json:"participant_ids"`
	InitialMessage string   `json:"initial_message"`
	BidID          string   `json:"bid,omitempty"`
	BookingID      string   `json:"booking,omitempty"`
}

type updateThreadRequest struct {
	ThreadType *string `json:"thread_type,omitempty" validate:"omitempty,oneof=bid booking general support"`
	BidID      *string `json:"bid,omitempty"`
	BookingID  *string `json:"booking,omitempty"`
}

// CreateThread creates a conversation thread, optionally seeding it with an
// initial message from the creator.
func (h *ThreadHandler) CreateThread(c echo.Context) error {
	var req createThreadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	thread, err := h.threadUseCase.CreateThread(c.Request().Context(), userID, usecase.CreateThreadInput{
		ThreadType:     req.ThreadType,
		ParticipantIDs: req.ParticipantIDs,
		InitialMessage: req.InitialMessage,
		BidID:          req.BidID,
		BookingID:      req.BookingID,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, thread)
}

// ListThreads returns the authenticated user's threads with unread counts.
func (h *ThreadHandler) ListThreads(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	threads, total, err := h.threadUseCase.ListThreads(c.Request().Context(), userID, usecase.ListThreadsInput{
		ThreadType: c.QueryParam("thread_type"),
		Ordering:   c.QueryParam("ordering"),
		Limit:      params.PageSize,
		Offset:     params.Offset,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, threads, total, params.Page, params.PageSize)
}

func (h *ThreadHandler) GetThread(c echo.Context) error {
	userID := c.Get("uid").(string)
	threadID := c.Param("id")

	thread, err := h.threadUseCase.GetThread(c.Request().Context(), userID, threadID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}

func (h *ThreadHandler) UpdateThread(c echo.Context) error {
	var req updateThreadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	threadID := c.Param("id")

	thread, err := h.threadUseCase.UpdateThread(c.Request().Context(), userID, threadID, usecase.UpdateThreadInput{
		ThreadType: req.ThreadType,
		BidID:      req.BidID,
		BookingID:  req.BookingID,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}

func (h *ThreadHandler) DeleteThread(c echo.Context) error {
	userID := c.Get("uid").(string)
	threadID := c.Param("id")

	if err := h.threadUseCase.DeleteThread(c.Request().Context(), userID, threadID); err != nil {
		return response.Error(c, err)
	}

	return response.NoContent(c)
}

// ListThreadMessages returns messages of a thread ordered oldest first. The
// optional since query param (RFC 3339) narrows the result to messages created
// after that instant, which clients use to catch up after a reconnect.
func (h *ThreadHandler) ListThreadMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	threadID := c.Param("id")

	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return response.Error(c, errors.Validation("since must be an RFC 3339 timestamp", err))
		}
		since = parsed
	}

	messages, err := h.messageUseCase.ListMessages(c.Request().Context(), userID, threadID, since)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}
