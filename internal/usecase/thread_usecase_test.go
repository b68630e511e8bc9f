package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prbal/internal/adapter/repository"
	"prbal/internal/domain/entity"
	"prbal/pkg/errors"
)

type fakeUserRepo struct {
	users map[string]*entity.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	users := make(map[string]*entity.User, len(ids))
	for _, id := range ids {
		users[id] = &entity.User{ID: id, Username: id}
	}
	return &fakeUserRepo{users: users}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return user, nil
}

func newThreadFixture(userIDs ...string) *ThreadUseCase {
	return NewThreadUseCase(repository.NewMemoryMessagingRepository(), newFakeUserRepo(userIDs...))
}

func TestCreateThreadValidation(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob")

	_, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     "party",
		ParticipantIDs: []string{"bob"},
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	// General threads need a second person besides the creator.
	_, err = uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType: entity.ThreadTypeGeneral,
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	_, err = uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeBid,
		ParticipantIDs: []string{"bob"},
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"), "bid thread without bid reference")

	_, err = uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeBid,
		ParticipantIDs: []string{"bob"},
		BidID:          "bid-1",
		BookingID:      "booking-1",
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"), "bid thread referencing a booking")

	_, err = uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
		BidID:          "bid-1",
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"), "general thread carrying a bid reference")
}

func TestCreateSupportThreadAllowsLoneUser(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice")

	thread, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType: entity.ThreadTypeSupport,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, thread.ParticipantIDs)
}

func TestCreateThreadUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice")

	_, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"ghost"},
	})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestCreateThreadDedupesCreator(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob")

	thread, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"alice", "bob", "bob"},
	})
	require.NoError(t, err)
	assert.Len(t, thread.ParticipantIDs, 2)
	assert.True(t, thread.HasParticipant("alice"))
	assert.True(t, thread.HasParticipant("bob"))
}

func TestCreateThreadWithInitialMessage(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob")

	thread, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
		InitialMessage: "hello there",
	})
	require.NoError(t, err)
	require.NotNil(t, thread.LastMessage)
	assert.Equal(t, "hello there", thread.LastMessage.Content)
	assert.Equal(t, "alice", thread.LastMessage.SenderID)
	assert.Equal(t, thread.ID, thread.LastMessage.ThreadID)

	// The initial message is unread for the other participant right away.
	got, err := uc.GetThread(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)

	got, err = uc.GetThread(ctx, "alice", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount)
}

func TestGetThreadAccess(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob")

	thread, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = uc.GetThread(ctx, "mallory", thread.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = uc.GetThread(ctx, "alice", "no-such-thread")
	assert.True(t, errors.Is(err, "NOT_FOUND"))

	got, err := uc.GetThread(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
}

func TestUpdateThread(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob")

	thread, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	bidType := entity.ThreadTypeBid
	bidRef := "bid-42"
	updated, err := uc.UpdateThread(ctx, "alice", thread.ID, UpdateThreadInput{
		ThreadType: &bidType,
		BidID:      &bidRef,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ThreadTypeBid, updated.ThreadType)
	assert.Equal(t, "bid-42", updated.BidID)

	// A bid thread cannot pick up a booking reference.
	bookingRef := "booking-7"
	_, err = uc.UpdateThread(ctx, "alice", thread.ID, UpdateThreadInput{
		BookingID: &bookingRef,
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	_, err = uc.UpdateThread(ctx, "mallory", thread.ID, UpdateThreadInput{})
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestDeleteThreadCascades(t *testing.T) {
	ctx := context.Background()
	userRepo := newFakeUserRepo("alice", "bob")
	repo := repository.NewMemoryMessagingRepository()
	threadUC := NewThreadUseCase(repo, userRepo)
	messageUC := NewMessageUseCase(repo, 0)

	thread, err := threadUC.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
		InitialMessage: "first",
	})
	require.NoError(t, err)

	message, err := messageUC.SendMessage(ctx, "bob", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "second",
	})
	require.NoError(t, err)

	require.NoError(t, threadUC.DeleteThread(ctx, "alice", thread.ID))

	_, err = threadUC.GetThread(ctx, "alice", thread.ID)
	assert.True(t, errors.Is(err, "NOT_FOUND"))

	_, err = messageUC.GetMessage(ctx, "alice", message.ID)
	assert.True(t, errors.Is(err, "NOT_FOUND"))

	// Double delete is an error the caller can detect, not a silent no-op.
	err = threadUC.DeleteThread(ctx, "alice", thread.ID)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestListThreads(t *testing.T) {
	ctx := context.Background()
	uc := newThreadFixture("alice", "bob", "carol")

	general, err := uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = uc.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeBooking,
		ParticipantIDs: []string{"carol"},
		BookingID:      "booking-1",
	})
	require.NoError(t, err)

	threads, total, err := uc.ListThreads(ctx, "alice", ListThreadsInput{Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, threads, 2)

	threads, total, err = uc.ListThreads(ctx, "alice", ListThreadsInput{
		ThreadType: entity.ThreadTypeGeneral,
		Limit:      20,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, threads, 1)
	assert.Equal(t, general.ID, threads[0].ID)

	// Bob only sees the thread he participates in.
	threads, total, err = uc.ListThreads(ctx, "bob", ListThreadsInput{Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, threads, 1)
	assert.Equal(t, general.ID, threads[0].ID)

	_, _, err = uc.ListThreads(ctx, "alice", ListThreadsInput{Ordering: "last_name"})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
}

func TestListThreadsAttachesUnreadCounts(t *testing.T) {
	ctx := context.Background()
	userRepo := newFakeUserRepo("alice", "bob")
	repo := repository.NewMemoryMessagingRepository()
	threadUC := NewThreadUseCase(repo, userRepo)
	messageUC := NewMessageUseCase(repo, 0)

	thread, err := threadUC.CreateThread(ctx, "alice", CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = messageUC.SendMessage(ctx, "alice", SendMessageInput{ThreadID: thread.ID, Content: "one"})
	require.NoError(t, err)
	_, err = messageUC.SendMessage(ctx, "alice", SendMessageInput{ThreadID: thread.ID, Content: "two"})
	require.NoError(t, err)

	threads, _, err := threadUC.ListThreads(ctx, "bob", ListThreadsInput{Limit: 20})
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 2, threads[0].UnreadCount)

	// The sender's own messages never count against them.
	threads, _, err = threadUC.ListThreads(ctx, "alice", ListThreadsInput{Limit: 20})
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 0, threads[0].UnreadCount)
}
