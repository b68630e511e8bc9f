package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"prbal/internal/domain/entity"
	"prbal/internal/domain/repository"
	"prbal/pkg/errors"
)

// memoryMessagingRepository keeps the full store in process memory. It backs
// the test suite and the development environment where no Firestore project
// is configured. All operations take the single store mutex, so every write
// is atomic with its thread side effects.
type memoryMessagingRepository struct {
	mu       sync.RWMutex
	threads  map[string]*entity.Thread
	messages map[string]*entity.Message
	byThread map[string][]string             // thread id -> message ids, createdAt ascending
	receipts map[string]map[string]time.Time // message id -> reader id -> readAt
	lastAt   map[string]time.Time            // thread id -> last assigned createdAt
}

func NewMemoryMessagingRepository() repository.MessagingRepository {
	return &memoryMessagingRepository{
		threads:  make(map[string]*entity.Thread),
		messages: make(map[string]*entity.Message),
		byThread: make(map[string][]string),
		receipts: make(map[string]map[string]time.Time),
		lastAt:   make(map[string]time.Time),
	}
}

func (r *memoryMessagingRepository) CreateThread(ctx context.Context, thread *entity.Thread, initial *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if thread.ID == "" {
		thread.ID = uuid.New().String()
	}

	now := time.Now()
	thread.CreatedAt = now
	thread.UpdatedAt = now

	stored := cloneThread(thread)
	r.threads[thread.ID] = stored
	r.byThread[thread.ID] = nil

	if initial != nil {
		initial.ThreadID = thread.ID
		r.insertMessageLocked(initial)
		*thread = *cloneThread(stored)
		thread.LastMessage = cloneMessage(initial)
	}

	return nil
}

func (r *memoryMessagingRepository) GetThread(ctx context.Context, id string) (*entity.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread, ok := r.threads[id]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}
	return r.projectThreadLocked(thread), nil
}

func (r *memoryMessagingRepository) ListThreadsByUser(ctx context.Context, userID string, filter repository.ThreadFilter, limit, offset int) ([]*entity.Thread, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var threads []*entity.Thread
	for _, thread := range r.threads {
		if !thread.HasParticipant(userID) {
			continue
		}
		if filter.ThreadType != "" && thread.ThreadType != filter.ThreadType {
			continue
		}
		threads = append(threads, r.projectThreadLocked(thread))
	}

	sortThreads(threads, filter.Ordering)
	total := int64(len(threads))

	if offset > len(threads) {
		offset = len(threads)
	}
	threads = threads[offset:]
	if limit > 0 && limit < len(threads) {
		threads = threads[:limit]
	}

	return threads, total, nil
}

func (r *memoryMessagingRepository) UpdateThread(ctx context.Context, id string, patch repository.ThreadPatch) (*entity.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	thread, ok := r.threads[id]
	if !ok {
		return nil, errors.NotFound("Thread", nil)
	}

	if patch.ThreadType != nil {
		thread.ThreadType = *patch.ThreadType
	}
	if patch.BidID != nil {
		thread.BidID = *patch.BidID
	}
	if patch.BookingID != nil {
		thread.BookingID = *patch.BookingID
	}
	thread.UpdatedAt = time.Now()

	return r.projectThreadLocked(thread), nil
}

func (r *memoryMessagingRepository) DeleteThread(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threads[id]; !ok {
		return errors.NotFound("Thread", nil)
	}

	for _, messageID := range r.byThread[id] {
		delete(r.messages, messageID)
		delete(r.receipts, messageID)
	}
	delete(r.byThread, id)
	delete(r.threads, id)
	delete(r.lastAt, id)

	return nil
}

func (r *memoryMessagingRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threads[message.ThreadID]; !ok {
		return errors.NotFound("Thread", nil)
	}

	r.insertMessageLocked(message)
	return nil
}

// insertMessageLocked assigns identity and timestamps, appends the message
// and refreshes the owning thread. CreatedAt is strictly increasing within a
// thread so listing order matches persistence order.
func (r *memoryMessagingRepository) insertMessageLocked(message *entity.Message) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	now := time.Now()
	if last, ok := r.lastAt[message.ThreadID]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	r.lastAt[message.ThreadID] = now
	message.CreatedAt = now
	message.UpdatedAt = now

	stored := cloneMessage(message)
	r.messages[message.ID] = stored
	r.byThread[message.ThreadID] = append(r.byThread[message.ThreadID], message.ID)

	thread := r.threads[message.ThreadID]
	thread.LastMessage = cloneMessage(stored)
	thread.UpdatedAt = now
}

func (r *memoryMessagingRepository) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return r.projectMessageLocked(message), nil
}

func (r *memoryMessagingRepository) UpdateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.messages[message.ID]
	if !ok {
		return errors.NotFound("Message", nil)
	}

	stored.Content = message.Content
	stored.Attachment = message.Attachment
	stored.UpdatedAt = time.Now()
	*message = *r.projectMessageLocked(stored)

	return nil
}

func (r *memoryMessagingRepository) DeleteMessage(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok {
		return errors.NotFound("Message", nil)
	}

	ids := r.byThread[message.ThreadID]
	for i, messageID := range ids {
		if messageID == id {
			r.byThread[message.ThreadID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(r.messages, id)
	delete(r.receipts, id)

	if thread, ok := r.threads[message.ThreadID]; ok && thread.LastMessage != nil && thread.LastMessage.ID == id {
		thread.LastMessage = nil
		if remaining := r.byThread[message.ThreadID]; len(remaining) > 0 {
			thread.LastMessage = cloneMessage(r.messages[remaining[len(remaining)-1]])
		}
	}

	return nil
}

func (r *memoryMessagingRepository) ListMessages(ctx context.Context, threadID string, since time.Time) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.threads[threadID]; !ok {
		return nil, errors.NotFound("Thread", nil)
	}

	var messages []*entity.Message
	for _, id := range r.byThread[threadID] {
		message := r.messages[id]
		if !since.IsZero() && !message.CreatedAt.After(since) {
			continue
		}
		messages = append(messages, r.projectMessageLocked(message))
	}

	return messages, nil
}

func (r *memoryMessagingRepository) FindMessageByClientID(ctx context.Context, threadID, clientMessageID string, window time.Duration) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	ids := r.byThread[threadID]
	for i := len(ids) - 1; i >= 0; i-- {
		message := r.messages[ids[i]]
		if message.CreatedAt.Before(cutoff) {
			break
		}
		if message.ClientMessageID == clientMessageID {
			return r.projectMessageLocked(message), nil
		}
	}

	return nil, errors.NotFound("Message", nil)
}

func (r *memoryMessagingRepository) CreateReadReceipt(ctx context.Context, receipt *entity.ReadReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[receipt.MessageID]; !ok {
		return errors.NotFound("Message", nil)
	}

	readers, ok := r.receipts[receipt.MessageID]
	if !ok {
		readers = make(map[string]time.Time)
		r.receipts[receipt.MessageID] = readers
	}
	if _, exists := readers[receipt.UserID]; exists {
		return nil
	}

	if receipt.ReadAt.IsZero() {
		receipt.ReadAt = time.Now()
	}
	readers[receipt.UserID] = receipt.ReadAt

	return nil
}

func (r *memoryMessagingRepository) HasReadReceipt(ctx context.Context, messageID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.receipts[messageID][userID]
	return ok, nil
}

func (r *memoryMessagingRepository) ListReceiptsByMessage(ctx context.Context, messageID string) ([]*entity.ReadReceipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}

	var receipts []*entity.ReadReceipt
	for userID, readAt := range r.receipts[messageID] {
		receipts = append(receipts, &entity.ReadReceipt{
			MessageID: messageID,
			ThreadID:  message.ThreadID,
			UserID:    userID,
			ReadAt:    readAt,
		})
	}

	return receipts, nil
}

func (r *memoryMessagingRepository) ListUnreadMessages(ctx context.Context, threadID, userID string) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.threads[threadID]; !ok {
		return nil, errors.NotFound("Thread", nil)
	}

	var unread []*entity.Message
	for _, id := range r.byThread[threadID] {
		message := r.messages[id]
		if message.SenderID == userID {
			continue
		}
		if _, read := r.receipts[id][userID]; read {
			continue
		}
		unread = append(unread, r.projectMessageLocked(message))
	}

	return unread, nil
}

func (r *memoryMessagingRepository) CountUnread(ctx context.Context, threadID, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.threads[threadID]; !ok {
		return 0, errors.NotFound("Thread", nil)
	}
	return r.countUnreadLocked(threadID, userID), nil
}

func (r *memoryMessagingRepository) CountUnreadByThread(ctx context.Context, userID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for id, thread := range r.threads {
		if thread.HasParticipant(userID) {
			counts[id] = r.countUnreadLocked(id, userID)
		}
	}

	return counts, nil
}

func (r *memoryMessagingRepository) countUnreadLocked(threadID, userID string) int {
	count := 0
	for _, id := range r.byThread[threadID] {
		message := r.messages[id]
		if message.SenderID == userID {
			continue
		}
		if _, read := r.receipts[id][userID]; read {
			continue
		}
		count++
	}
	return count
}

// projectMessageLocked returns a copy with the is_read projection applied:
// read by anyone other than the sender.
func (r *memoryMessagingRepository) projectMessageLocked(message *entity.Message) *entity.Message {
	out := cloneMessage(message)
	for userID := range r.receipts[message.ID] {
		if userID != message.SenderID {
			out.IsRead = true
			break
		}
	}
	return out
}

func (r *memoryMessagingRepository) projectThreadLocked(thread *entity.Thread) *entity.Thread {
	out := cloneThread(thread)
	if out.LastMessage != nil {
		out.LastMessage = r.projectMessageLocked(out.LastMessage)
	}
	return out
}

func sortThreads(threads []*entity.Thread, ordering string) {
	if ordering == "" {
		ordering = "-updated_at"
	}
	sort.SliceStable(threads, func(i, j int) bool {
		switch ordering {
		case "updated_at":
			return threads[i].UpdatedAt.Before(threads[j].UpdatedAt)
		case "created_at":
			return threads[i].CreatedAt.Before(threads[j].CreatedAt)
		case "-created_at":
			return threads[j].CreatedAt.Before(threads[i].CreatedAt)
		default:
			return threads[j].UpdatedAt.Before(threads[i].UpdatedAt)
		}
	})
}

func cloneThread(t *entity.Thread) *entity.Thread {
	out := *t
	out.ParticipantIDs = append([]string(nil), t.ParticipantIDs...)
	if t.LastMessage != nil {
		out.LastMessage = cloneMessage(t.LastMessage)
	}
	return &out
}

func cloneMessage(m *entity.Message) *entity.Message {
	out := *m
	return &out
}
