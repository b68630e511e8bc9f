package usecase

import (
	"context"
	"sync"
	"time"

	"prbal/internal/domain/entity"
	"prbal/internal/domain/repository"
	"prbal/internal/infrastructure/ratelimit"
	"prbal/pkg/errors"
	"prbal/pkg/logger"
	"prbal/pkg/utils"
)

// Broadcaster pushes persisted events to connected realtime clients. The
// realtime gateway implements it; a nil broadcaster means no one is listening.
type Broadcaster interface {
	BroadcastMessage(threadID string, message *entity.Message)
	BroadcastReadReceipt(threadID, messageID, readerID string)
}

type MessageUseCase struct {
	messagingRepo     repository.MessagingRepository
	rateLimiter       *ratelimit.RateLimiter
	idempotencyWindow time.Duration

	broadcaster Broadcaster

	// threadLocks funnels all writes for one thread through a single
	// owner, so message order and the thread's lastMessage follow commit
	// order without finer-grained coordination.
	threadLocks sync.Map // thread id -> *sync.Mutex
}

func NewMessageUseCase(messagingRepo repository.MessagingRepository, idempotencyWindow time.Duration) *MessageUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &MessageUseCase{
		messagingRepo:     messagingRepo,
		rateLimiter:       rateLimiter,
		idempotencyWindow: idempotencyWindow,
	}
}

// SetBroadcaster wires the realtime gateway in after construction; the
// gateway itself depends on this usecase.
func (uc *MessageUseCase) SetBroadcaster(b Broadcaster) {
	uc.broadcaster = b
}

func (uc *MessageUseCase) lockThread(threadID string) func() {
	v, _ := uc.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type SendMessageInput struct {
	ThreadID        string
	Content         string
	Attachment      string
	ClientMessageID string
}

type UpdateMessageInput struct {
	Content    string
	Attachment string
}

// MarkReadResult reports a bulk mark-as-read outcome: ids that got a receipt
// (or already had one) and ids that failed, keyed by reason.
type MarkReadResult struct {
	Read   []string          `json:"read"`
	Failed map[string]string `json:"failed,omitempty"`
}

// FailedReason reports whether the given id failed, and why.
func (r *MarkReadResult) FailedReason(messageID string) (string, bool) {
	reason, ok := r.Failed[messageID]
	return reason, ok
}

// UnreadCountResult is the unread_count endpoint payload.
type UnreadCountResult struct {
	TotalUnread  int            `json:"total_unread"`
	UnreadCounts map[string]int `json:"unread_counts,omitempty"`
}

func (uc *MessageUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*entity.Message, error) {
	allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message")
	if !allowed {
		logger.Warn("SendMessage rate limited: user %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	thread, err := uc.messagingRepo.GetThread(ctx, input.ThreadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(senderID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	if err := validateMessageBody(input.Content, input.Attachment); err != nil {
		return nil, err
	}

	unlock := uc.lockThread(input.ThreadID)
	defer unlock()

	if input.ClientMessageID != "" {
		existing, err := uc.messagingRepo.FindMessageByClientID(ctx, input.ThreadID, input.ClientMessageID, uc.idempotencyWindow)
		if err == nil {
			logger.Debug("SendMessage: client id %s already persisted as %s", input.ClientMessageID, existing.ID)
			return existing, nil
		}
		if !errors.Is(err, "NOT_FOUND") {
			return nil, err
		}
	}

	message := &entity.Message{
		ThreadID:        input.ThreadID,
		SenderID:        senderID,
		Content:         input.Content,
		Attachment:      input.Attachment,
		ClientMessageID: input.ClientMessageID,
	}

	if err := uc.messagingRepo.CreateMessage(ctx, message); err != nil {
		logger.Error("SendMessage: failed to persist message for thread %s: %v", input.ThreadID, err)
		return nil, err
	}

	if uc.broadcaster != nil {
		uc.broadcaster.BroadcastMessage(input.ThreadID, message)
	}

	return message, nil
}

func (uc *MessageUseCase) GetMessage(ctx context.Context, userID, messageID string) (*entity.Message, error) {
	message, err := uc.messagingRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	thread, err := uc.messagingRepo.GetThread(ctx, message.ThreadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	return message, nil
}

func (uc *MessageUseCase) UpdateMessage(ctx context.Context, userID, messageID string, input UpdateMessageInput) (*entity.Message, error) {
	message, err := uc.messagingRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID {
		return nil, errors.Forbidden("Only the sender may edit a message", nil)
	}

	if err := validateMessageBody(input.Content, input.Attachment); err != nil {
		return nil, err
	}

	unlock := uc.lockThread(message.ThreadID)
	defer unlock()

	message.Content = input.Content
	message.Attachment = input.Attachment
	if err := uc.messagingRepo.UpdateMessage(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (uc *MessageUseCase) DeleteMessage(ctx context.Context, userID, messageID string) error {
	message, err := uc.messagingRepo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID {
		return errors.Forbidden("Only the sender may delete a message", nil)
	}

	unlock := uc.lockThread(message.ThreadID)
	defer unlock()

	return uc.messagingRepo.DeleteMessage(ctx, messageID)
}

func (uc *MessageUseCase) ListMessages(ctx context.Context, userID, threadID string, since time.Time) ([]*entity.Message, error) {
	thread, err := uc.messagingRepo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	return uc.messagingRepo.ListMessages(ctx, threadID, since)
}

// MarkRead creates receipts for each id the user may read. One bad id never
// blocks the rest of the batch.
// ListReceipts returns who has read a message, for "seen by" displays.
func (uc *MessageUseCase) ListReceipts(ctx context.Context, userID, messageID string) ([]*entity.ReadReceipt, error) {
	message, err := uc.messagingRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	thread, err := uc.messagingRepo.GetThread(ctx, message.ThreadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	return uc.messagingRepo.ListReceiptsByMessage(ctx, messageID)
}

func (uc *MessageUseCase) MarkRead(ctx context.Context, userID string, messageIDs []string) (*MarkReadResult, error) {
	result := &MarkReadResult{
		Failed: make(map[string]string),
	}

	for _, messageID := range messageIDs {
		message, err := uc.messagingRepo.GetMessage(ctx, messageID)
		if err != nil {
			result.Failed[messageID] = "message not found"
			continue
		}

		thread, err := uc.messagingRepo.GetThread(ctx, message.ThreadID)
		if err != nil {
			result.Failed[messageID] = "thread not found"
			continue
		}
		if !thread.HasParticipant(userID) {
			result.Failed[messageID] = "not a participant"
			continue
		}

		if err := uc.messagingRepo.CreateReadReceipt(ctx, &entity.ReadReceipt{
			MessageID: messageID,
			ThreadID:  message.ThreadID,
			UserID:    userID,
		}); err != nil {
			logger.Error("MarkRead: failed to persist receipt for message %s: %v", messageID, err)
			result.Failed[messageID] = "failed to persist receipt"
			continue
		}

		result.Read = append(result.Read, messageID)
		if uc.broadcaster != nil && message.SenderID != userID {
			uc.broadcaster.BroadcastReadReceipt(message.ThreadID, messageID, userID)
		}
	}

	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result, nil
}

func (uc *MessageUseCase) MarkAllReadInThread(ctx context.Context, userID, threadID string) (*MarkReadResult, error) {
	thread, err := uc.messagingRepo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	unread, err := uc.messagingRepo.ListUnreadMessages(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	result := &MarkReadResult{}
	for _, message := range unread {
		if err := uc.messagingRepo.CreateReadReceipt(ctx, &entity.ReadReceipt{
			MessageID: message.ID,
			ThreadID:  threadID,
			UserID:    userID,
		}); err != nil {
			logger.Error("MarkAllReadInThread: failed to persist receipt for message %s: %v", message.ID, err)
			continue
		}
		result.Read = append(result.Read, message.ID)
		if uc.broadcaster != nil {
			uc.broadcaster.BroadcastReadReceipt(threadID, message.ID, userID)
		}
	}

	return result, nil
}

func (uc *MessageUseCase) UnreadCount(ctx context.Context, userID, threadID string) (*UnreadCountResult, error) {
	if threadID != "" {
		thread, err := uc.messagingRepo.GetThread(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if !thread.HasParticipant(userID) {
			return nil, errors.Forbidden("User is not a participant in this thread", nil)
		}

		count, err := uc.messagingRepo.CountUnread(ctx, threadID, userID)
		if err != nil {
			return nil, err
		}
		return &UnreadCountResult{
			TotalUnread:  count,
			UnreadCounts: map[string]int{threadID: count},
		}, nil
	}

	counts, err := uc.messagingRepo.CountUnreadByThread(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	return &UnreadCountResult{
		TotalUnread:  total,
		UnreadCounts: counts,
	}, nil
}

func validateMessageBody(content, attachment string) error {
	if content == "" && attachment == "" {
		return errors.Validation("content is required when no attachment is present", nil)
	}
	if attachment != "" {
		if _, err := utils.ParseDataURI(attachment); err != nil {
			return errors.Validation(err.Error(), err)
		}
	}
	return nil
}
