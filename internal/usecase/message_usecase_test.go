package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prbal/internal/adapter/repository"
	"prbal/internal/domain/entity"
	"prbal/pkg/errors"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []*entity.Message
	receipts []string // "threadID/messageID/readerID"
}

func (b *recordingBroadcaster) BroadcastMessage(threadID string, message *entity.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
}

func (b *recordingBroadcaster) BroadcastReadReceipt(threadID, messageID, readerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts = append(b.receipts, threadID+"/"+messageID+"/"+readerID)
}

type messagingFixture struct {
	threadUC  *ThreadUseCase
	messageUC *MessageUseCase
	broadcast *recordingBroadcaster
}

func newMessagingFixture(userIDs ...string) *messagingFixture {
	repo := repository.NewMemoryMessagingRepository()
	broadcast := &recordingBroadcaster{}
	messageUC := NewMessageUseCase(repo, 5*time.Minute)
	messageUC.SetBroadcaster(broadcast)
	return &messagingFixture{
		threadUC:  NewThreadUseCase(repo, newFakeUserRepo(userIDs...)),
		messageUC: messageUC,
		broadcast: broadcast,
	}
}

func (f *messagingFixture) createThread(t *testing.T, creator string, participants ...string) *entity.Thread {
	t.Helper()
	thread, err := f.threadUC.CreateThread(context.Background(), creator, CreateThreadInput{
		ThreadType:     entity.ThreadTypeGeneral,
		ParticipantIDs: participants,
	})
	require.NoError(t, err)
	return thread
}

func TestSendMessageAdvancesThread(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")
	before := thread.UpdatedAt

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)

	got, err := f.threadUC.GetThread(ctx, "alice", thread.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, message.ID, got.LastMessage.ID)
	assert.False(t, got.UpdatedAt.Before(before))
	assert.False(t, got.UpdatedAt.Before(message.CreatedAt))
}

func TestSendMessageForbiddenForNonParticipant(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	_, err := f.messageUC.SendMessage(ctx, "mallory", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "let me in",
	})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: "no-such-thread",
		Content:  "hello?",
	})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestSendMessageBodyValidation(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	_, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{ThreadID: thread.ID})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"), "neither content nor attachment")

	_, err = f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID:   thread.ID,
		Attachment: "not-a-data-uri",
	})
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	// Attachment alone is enough when it is a well-formed data URI.
	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID:   thread.ID,
		Attachment: "data:text/plain;base64,aGVsbG8gd29ybGQ=",
	})
	require.NoError(t, err)
	assert.Empty(t, message.Content)
}

func TestSendMessageIdempotency(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	first, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID:        thread.ID,
		Content:         "exactly once",
		ClientMessageID: "local-1",
	})
	require.NoError(t, err)

	retry, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID:        thread.ID,
		Content:         "exactly once",
		ClientMessageID: "local-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)

	messages, err := f.messageUC.ListMessages(ctx, "alice", thread.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestSendMessageBroadcasts(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "fan out",
	})
	require.NoError(t, err)

	require.Len(t, f.broadcast.messages, 1)
	assert.Equal(t, message.ID, f.broadcast.messages[0].ID)
}

func TestUnreadIsPerRecipient(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob", "carol")
	thread := f.createThread(t, "alice", "bob", "carol")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "to both of you",
	})
	require.NoError(t, err)

	// Unread for each recipient, never for the sender.
	for user, want := range map[string]int{"alice": 0, "bob": 1, "carol": 1} {
		result, err := f.messageUC.UnreadCount(ctx, user, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, want, result.TotalUnread, user)
	}

	result, err := f.messageUC.MarkRead(ctx, "bob", []string{message.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{message.ID}, result.Read)
	assert.Nil(t, result.Failed)

	// Bob's receipt clears Bob only; Carol still has it unread.
	counts := map[string]int{"alice": 0, "bob": 0, "carol": 1}
	for user, want := range counts {
		result, err := f.messageUC.UnreadCount(ctx, user, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, want, result.TotalUnread, user)
	}

	// The boolean projection flips once anyone besides the sender has read.
	got, err := f.messageUC.GetMessage(ctx, "alice", message.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "read me twice",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := f.messageUC.MarkRead(ctx, "bob", []string{message.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{message.ID}, result.Read)
	}

	result, err := f.messageUC.UnreadCount(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalUnread)
}

func TestMarkReadPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "valid",
	})
	require.NoError(t, err)

	result, err := f.messageUC.MarkRead(ctx, "bob", []string{message.ID, "no-such-message"})
	require.NoError(t, err)
	assert.Equal(t, []string{message.ID}, result.Read)

	reason, failed := result.FailedReason("no-such-message")
	assert.True(t, failed)
	assert.NotEmpty(t, reason)
}

func TestMarkReadRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "members only",
	})
	require.NoError(t, err)

	result, err := f.messageUC.MarkRead(ctx, "mallory", []string{message.ID})
	require.NoError(t, err)
	assert.Empty(t, result.Read)
	_, failed := result.FailedReason(message.ID)
	assert.True(t, failed)
}

func TestMarkAllReadInThread(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
			ThreadID: thread.ID,
			Content:  content,
		})
		require.NoError(t, err)
	}

	result, err := f.messageUC.MarkAllReadInThread(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Len(t, result.Read, 3)

	counts, err := f.messageUC.UnreadCount(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.TotalUnread)

	// Nothing left unread, so a second pass is a no-op.
	result, err = f.messageUC.MarkAllReadInThread(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Read)

	// A later message starts the count again.
	_, err = f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "four",
	})
	require.NoError(t, err)

	counts, err = f.messageUC.UnreadCount(ctx, "bob", thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.TotalUnread)
}

func TestUnreadCountAcrossThreads(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob", "carol")
	first := f.createThread(t, "alice", "bob")
	second := f.createThread(t, "carol", "bob")

	_, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{ThreadID: first.ID, Content: "a"})
	require.NoError(t, err)
	_, err = f.messageUC.SendMessage(ctx, "carol", SendMessageInput{ThreadID: second.ID, Content: "b"})
	require.NoError(t, err)
	_, err = f.messageUC.SendMessage(ctx, "carol", SendMessageInput{ThreadID: second.ID, Content: "c"})
	require.NoError(t, err)

	result, err := f.messageUC.UnreadCount(ctx, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalUnread)
	assert.Equal(t, 1, result.UnreadCounts[first.ID])
	assert.Equal(t, 2, result.UnreadCounts[second.ID])
}

func TestMessageOwnership(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "original",
	})
	require.NoError(t, err)

	_, err = f.messageUC.UpdateMessage(ctx, "bob", message.ID, UpdateMessageInput{Content: "hijacked"})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	err = f.messageUC.DeleteMessage(ctx, "bob", message.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	updated, err := f.messageUC.UpdateMessage(ctx, "alice", message.ID, UpdateMessageInput{Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)

	require.NoError(t, f.messageUC.DeleteMessage(ctx, "alice", message.ID))
	_, err = f.messageUC.GetMessage(ctx, "alice", message.ID)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestListMessagesSince(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	var cutoff time.Time
	for i, content := range []string{"one", "two", "three"} {
		message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
			ThreadID: thread.ID,
			Content:  content,
		})
		require.NoError(t, err)
		if i == 0 {
			cutoff = message.CreatedAt
		}
	}

	all, err := f.messageUC.ListMessages(ctx, "bob", thread.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "ascending order")
	}

	recent, err := f.messageUC.ListMessages(ctx, "bob", thread.ID, cutoff)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestListReceipts(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob", "carol")
	thread := f.createThread(t, "alice", "bob", "carol")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "who has seen this",
	})
	require.NoError(t, err)

	receipts, err := f.messageUC.ListReceipts(ctx, "alice", message.ID)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	_, err = f.messageUC.MarkRead(ctx, "bob", []string{message.ID})
	require.NoError(t, err)

	receipts, err = f.messageUC.ListReceipts(ctx, "alice", message.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "bob", receipts[0].UserID)
	assert.False(t, receipts[0].ReadAt.IsZero())

	_, err = f.messageUC.ListReceipts(ctx, "mallory", message.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestReadReceiptBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newMessagingFixture("alice", "bob")
	thread := f.createThread(t, "alice", "bob")

	message, err := f.messageUC.SendMessage(ctx, "alice", SendMessageInput{
		ThreadID: thread.ID,
		Content:  "notify on read",
	})
	require.NoError(t, err)

	_, err = f.messageUC.MarkRead(ctx, "bob", []string{message.ID})
	require.NoError(t, err)

	require.Len(t, f.broadcast.receipts, 1)
	assert.Equal(t, thread.ID+"/"+message.ID+"/bob", f.broadcast.receipts[0])
}
