package usecase

import (
	"context"

	"prbal/internal/domain/entity"
	"prbal/internal/domain/repository"
	"prbal/internal/infrastructure/ratelimit"
	"prbal/pkg/errors"
	"prbal/pkg/logger"
)

type ThreadUseCase struct {
	messagingRepo repository.MessagingRepository
	userRepo      repository.UserRepository
	rateLimiter   *ratelimit.RateLimiter
}

func NewThreadUseCase(
	messagingRepo repository.MessagingRepository,
	userRepo repository.UserRepository,
) *ThreadUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ThreadUseCase{
		messagingRepo: messagingRepo,
		userRepo:      userRepo,
		rateLimiter:   rateLimiter,
	}
}

type CreateThreadInput struct {
	ThreadType     string
	ParticipantIDs []string
	InitialMessage string
	BidID          string
	BookingID      string
}

type UpdateThreadInput struct {
	ThreadType *string
	BidID      *string
	BookingID  *string
}

type ListThreadsInput struct {
	ThreadType string
	Ordering   string
	Limit      int
	Offset     int
}

func (uc *ThreadUseCase) CreateThread(ctx context.Context, creatorID string, input CreateThreadInput) (*entity.Thread, error) {
	allowed, waitTime := uc.rateLimiter.Allow(creatorID, "create_thread")
	if !allowed {
		logger.Warn("CreateThread rate limited: user %s must wait %v", creatorID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before creating another thread")
	}

	if !entity.IsValidThreadType(input.ThreadType) {
		return nil, errors.Validation("thread_type must be one of: bid, booking, general, support", nil)
	}

	participants := dedupeStrings(append(input.ParticipantIDs, creatorID))
	if err := validateParticipantCount(input.ThreadType, participants); err != nil {
		return nil, err
	}

	if err := validateRelatedRefs(input.ThreadType, input.BidID, input.BookingID); err != nil {
		return nil, err
	}
	if input.ThreadType == entity.ThreadTypeBid && input.BidID == "" {
		return nil, errors.Validation("bid threads require a bid reference", nil)
	}
	if input.ThreadType == entity.ThreadTypeBooking && input.BookingID == "" {
		return nil, errors.Validation("booking threads require a booking reference", nil)
	}

	for _, participantID := range participants {
		if _, err := uc.userRepo.GetByID(ctx, participantID); err != nil {
			logger.Warn("CreateThread: participant %s not found: %v", participantID, err)
			return nil, errors.NotFound("Participant", err)
		}
	}

	thread := &entity.Thread{
		ThreadType:     input.ThreadType,
		ParticipantIDs: participants,
		BidID:          input.BidID,
		BookingID:      input.BookingID,
	}

	var initial *entity.Message
	if input.InitialMessage != "" {
		initial = &entity.Message{
			SenderID: creatorID,
			Content:  input.InitialMessage,
		}
	}

	if err := uc.messagingRepo.CreateThread(ctx, thread, initial); err != nil {
		logger.Error("CreateThread: failed to persist thread: %v", err)
		return nil, err
	}

	return thread, nil
}

func (uc *ThreadUseCase) GetThread(ctx context.Context, userID, threadID string) (*entity.Thread, error) {
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
	thread.UnreadCount = count

	return thread, nil
}

func (uc *ThreadUseCase) ListThreads(ctx context.Context, userID string, input ListThreadsInput) ([]*entity.Thread, int64, error) {
	if input.ThreadType != "" && !entity.IsValidThreadType(input.ThreadType) {
		return nil, 0, errors.Validation("thread_type must be one of: bid, booking, general, support", nil)
	}

	switch input.Ordering {
	case "", "updated_at", "-updated_at", "created_at", "-created_at":
	default:
		return nil, 0, errors.Validation("ordering must be one of: updated_at, -updated_at, created_at, -created_at", nil)
	}

	threads, total, err := uc.messagingRepo.ListThreadsByUser(ctx, userID, repository.ThreadFilter{
		ThreadType: input.ThreadType,
		Ordering:   input.Ordering,
	}, input.Limit, input.Offset)
	if err != nil {
		return nil, 0, err
	}

	counts, err := uc.messagingRepo.CountUnreadByThread(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	for _, thread := range threads {
		thread.UnreadCount = counts[thread.ID]
	}

	return threads, total, nil
}

func (uc *ThreadUseCase) UpdateThread(ctx context.Context, userID, threadID string, input UpdateThreadInput) (*entity.Thread, error) {
	thread, err := uc.messagingRepo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if !thread.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this thread", nil)
	}

	threadType := thread.ThreadType
	if input.ThreadType != nil {
		if !entity.IsValidThreadType(*input.ThreadType) {
			return nil, errors.Validation("thread_type must be one of: bid, booking, general, support", nil)
		}
		threadType = *input.ThreadType
	}

	bidID := thread.BidID
	if input.BidID != nil {
		bidID = *input.BidID
	}
	bookingID := thread.BookingID
	if input.BookingID != nil {
		bookingID = *input.BookingID
	}

	if err := validateRelatedRefs(threadType, bidID, bookingID); err != nil {
		return nil, err
	}

	updated, err := uc.messagingRepo.UpdateThread(ctx, threadID, repository.ThreadPatch{
		ThreadType: input.ThreadType,
		BidID:      input.BidID,
		BookingID:  input.BookingID,
	})
	if err != nil {
		return nil, err
	}

	count, err := uc.messagingRepo.CountUnread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	updated.UnreadCount = count

	return updated, nil
}

func (uc *ThreadUseCase) DeleteThread(ctx context.Context, userID, threadID string) error {
	thread, err := uc.messagingRepo.GetThread(ctx, threadID)
	if err != nil {
		return err
	}

	if !thread.HasParticipant(userID) {
		return errors.Forbidden("User is not a participant in this thread", nil)
	}

	return uc.messagingRepo.DeleteThread(ctx, threadID)
}

func validateParticipantCount(threadType string, participants []string) error {
	if len(participants) == 0 {
		return errors.Validation("participant_ids must not be empty", nil)
	}
	// A support thread can start with a lone user waiting for an agent;
	// every other type is a conversation between at least two people.
	if threadType != entity.ThreadTypeSupport && len(participants) < 2 {
		return errors.Validation("non-support threads require at least 2 participants", nil)
	}
	return nil
}

func validateRelatedRefs(threadType, bidID, bookingID string) error {
	switch threadType {
	case entity.ThreadTypeBid:
		if bookingID != "" {
			return errors.Validation("bid threads cannot reference a booking", nil)
		}
	case entity.ThreadTypeBooking:
		if bidID != "" {
			return errors.Validation("booking threads cannot reference a bid", nil)
		}
	default:
		if bidID != "" || bookingID != "" {
			return errors.Validation("only bid and booking threads may carry related references", nil)
		}
	}
	return nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
