package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"prbal/internal/domain/entity"
	"prbal/internal/domain/repository"
	"prbal/pkg/errors"
	"prbal/pkg/logger"
)

// firestoreMessagingRepository stores threads in the "threads" collection
// with messages and per-message receipts as subcollections. Each message doc
// additionally carries a readBy array mirroring its receipts so the is_read
// projection and unread counting do not need a collection-group query.
type firestoreMessagingRepository struct {
	client *firestore.Client
}

func NewFirestoreMessagingRepository(client *firestore.Client) repository.MessagingRepository {
	return &firestoreMessagingRepository{
		client: client,
	}
}

// messageDoc is the Firestore shape of entity.Message.
type messageDoc struct {
	ID              string    `firestore:"id"`
	ThreadID        string    `firestore:"threadId"`
	SenderID        string    `firestore:"senderId"`
	Content         string    `firestore:"content"`
	Attachment      string    `firestore:"attachment,omitempty"`
	ClientMessageID string    `firestore:"clientMessageId,omitempty"`
	ReadBy          []string  `firestore:"readBy"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d *messageDoc) toEntity() *entity.Message {
	message := &entity.Message{
		ID:              d.ID,
		ThreadID:        d.ThreadID,
		SenderID:        d.SenderID,
		Content:         d.Content,
		Attachment:      d.Attachment,
		ClientMessageID: d.ClientMessageID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, reader := range d.ReadBy {
		if reader != d.SenderID {
			message.IsRead = true
			break
		}
	}
	return message
}

func docFromMessage(m *entity.Message) *messageDoc {
	return &messageDoc{
		ID:              m.ID,
		ThreadID:        m.ThreadID,
		SenderID:        m.SenderID,
		Content:         m.Content,
		Attachment:      m.Attachment,
		ClientMessageID: m.ClientMessageID,
		ReadBy:          []string{},
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (r *firestoreMessagingRepository) threadRef(id string) *firestore.DocumentRef {
	return r.client.Collection("threads").Doc(id)
}

func (r *firestoreMessagingRepository) messageRef(threadID, messageID string) *firestore.DocumentRef {
	return r.threadRef(threadID).Collection("messages").Doc(messageID)
}

func (r *firestoreMessagingRepository) CreateThread(ctx context.Context, thread *entity.Thread, initial *entity.Message) error {
	if thread.ID == "" {
		thread.ID = uuid.New().String()
	}

	now := time.Now()
	thread.CreatedAt = now
	thread.UpdatedAt = now

	if initial == nil {
		if _, err := r.threadRef(thread.ID).Set(ctx, thread); err != nil {
			return errors.Internal("Failed to create thread", err)
		}
		return nil
	}

	initial.ID = uuid.New().String()
	initial.ThreadID = thread.ID
	initial.CreatedAt = now
	initial.UpdatedAt = now
	thread.LastMessage = initial

	// Thread and its first message land in one transaction so the thread is
	// never visible without the message it was created with.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(r.threadRef(thread.ID), thread); err != nil {
			return err
		}
		return tx.Set(r.messageRef(thread.ID, initial.ID), docFromMessage(initial))
	})
	if err != nil {
		return errors.Internal("Failed to create thread with initial message", err)
	}

	return nil
}

func (r *firestoreMessagingRepository) GetThread(ctx context.Context, id string) (*entity.Thread, error) {
	doc, err := r.threadRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to get thread", err)
	}

	var thread entity.Thread
	if err := doc.DataTo(&thread); err != nil {
		return nil, errors.Internal("Failed to parse thread data", err)
	}
	return &thread, nil
}

func (r *firestoreMessagingRepository) ListThreadsByUser(ctx context.Context, userID string, filter repository.ThreadFilter, limit, offset int) ([]*entity.Thread, int64, error) {
	query := r.client.Collection("threads").Where("participantIds", "array-contains", userID)
	if filter.ThreadType != "" {
		query = query.Where("threadType", "==", filter.ThreadType)
	}

	switch filter.Ordering {
	case "updated_at":
		query = query.OrderBy("updatedAt", firestore.Asc)
	case "created_at":
		query = query.OrderBy("createdAt", firestore.Asc)
	case "-created_at":
		query = query.OrderBy("createdAt", firestore.Desc)
	default:
		query = query.OrderBy("updatedAt", firestore.Desc)
	}

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while counting threads for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to count threads", err)
	}
	total := int64(len(countDocs))

	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	var threads []*entity.Thread
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, errors.Internal("Failed to iterate threads", err)
		}

		var thread entity.Thread
		if err := doc.DataTo(&thread); err != nil {
			return nil, 0, errors.Internal("Failed to parse thread data", err)
		}
		threads = append(threads, &thread)
	}

	return threads, total, nil
}

func (r *firestoreMessagingRepository) UpdateThread(ctx context.Context, id string, patch repository.ThreadPatch) (*entity.Thread, error) {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: time.Now()},
	}
	if patch.ThreadType != nil {
		updates = append(updates, firestore.Update{Path: "threadType", Value: *patch.ThreadType})
	}
	if patch.BidID != nil {
		updates = append(updates, firestore.Update{Path: "bidId", Value: *patch.BidID})
	}
	if patch.BookingID != nil {
		updates = append(updates, firestore.Update{Path: "bookingId", Value: *patch.BookingID})
	}

	if _, err := r.threadRef(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Thread", err)
		}
		return nil, errors.Internal("Failed to update thread", err)
	}

	return r.GetThread(ctx, id)
}

func (r *firestoreMessagingRepository) DeleteThread(ctx context.Context, id string) error {
	if _, err := r.GetThread(ctx, id); err != nil {
		return err
	}

	// Cascade: receipts under each message, then the message docs, then the
	// thread itself.
	iter := r.threadRef(id).Collection("messages").Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Internal("Failed to iterate messages for delete", err)
		}

		receipts := doc.Ref.Collection("receipts").Documents(ctx)
		for {
			receipt, err := receipts.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return errors.Internal("Failed to iterate receipts for delete", err)
			}
			if _, err := receipt.Ref.Delete(ctx); err != nil {
				return errors.Internal("Failed to delete receipt", err)
			}
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			return errors.Internal("Failed to delete message", err)
		}
	}

	if _, err := r.threadRef(id).Delete(ctx); err != nil {
		return errors.Internal("Failed to delete thread", err)
	}

	return nil
}

func (r *firestoreMessagingRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	now := time.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	// Message create and the thread's lastMessage/updatedAt refresh commit
	// together or not at all.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(r.threadRef(message.ThreadID)); err != nil {
			return err
		}
		if err := tx.Set(r.messageRef(message.ThreadID, message.ID), docFromMessage(message)); err != nil {
			return err
		}
		return tx.Update(r.threadRef(message.ThreadID), []firestore.Update{
			{Path: "lastMessage", Value: message},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Thread", err)
		}
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessagingRepository) getMessageDoc(ctx context.Context, id string) (*firestore.DocumentSnapshot, *messageDoc, error) {
	iter := r.client.CollectionGroup("messages").Where("id", "==", id).Limit(1).Documents(ctx)
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil, errors.NotFound("Message", nil)
	}
	if err != nil {
		return nil, nil, errors.Internal("Failed to get message", err)
	}

	var data messageDoc
	if err := doc.DataTo(&data); err != nil {
		return nil, nil, errors.Internal("Failed to parse message data", err)
	}
	return doc, &data, nil
}

func (r *firestoreMessagingRepository) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	_, data, err := r.getMessageDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return data.toEntity(), nil
}

func (r *firestoreMessagingRepository) UpdateMessage(ctx context.Context, message *entity.Message) error {
	doc, data, err := r.getMessageDoc(ctx, message.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err := doc.Ref.Update(ctx, []firestore.Update{
		{Path: "content", Value: message.Content},
		{Path: "attachment", Value: message.Attachment},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		return errors.Internal("Failed to update message", err)
	}

	data.Content = message.Content
	data.Attachment = message.Attachment
	data.UpdatedAt = now
	*message = *data.toEntity()

	return nil
}

func (r *firestoreMessagingRepository) DeleteMessage(ctx context.Context, id string) error {
	doc, _, err := r.getMessageDoc(ctx, id)
	if err != nil {
		return err
	}

	receipts := doc.Ref.Collection("receipts").Documents(ctx)
	for {
		receipt, err := receipts.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Internal("Failed to iterate receipts for delete", err)
		}
		if _, err := receipt.Ref.Delete(ctx); err != nil {
			return errors.Internal("Failed to delete receipt", err)
		}
	}

	if _, err := doc.Ref.Delete(ctx); err != nil {
		return errors.Internal("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreMessagingRepository) ListMessages(ctx context.Context, threadID string, since time.Time) ([]*entity.Message, error) {
	if _, err := r.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	query := r.threadRef(threadID).Collection("messages").OrderBy("createdAt", firestore.Asc)
	if !since.IsZero() {
		query = query.Where("createdAt", ">", since)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for thread %s: %v", threadID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var data messageDoc
		if err := doc.DataTo(&data); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, data.toEntity())
	}

	return messages, nil
}

func (r *firestoreMessagingRepository) FindMessageByClientID(ctx context.Context, threadID, clientMessageID string, window time.Duration) (*entity.Message, error) {
	iter := r.threadRef(threadID).Collection("messages").
		Where("clientMessageId", "==", clientMessageID).
		Where("createdAt", ">", time.Now().Add(-window)).
		Limit(1).
		Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Message", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to look up message by client id", err)
	}

	var data messageDoc
	if err := doc.DataTo(&data); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return data.toEntity(), nil
}

func (r *firestoreMessagingRepository) CreateReadReceipt(ctx context.Context, receipt *entity.ReadReceipt) error {
	doc, _, err := r.getMessageDoc(ctx, receipt.MessageID)
	if err != nil {
		return err
	}

	if receipt.ReadAt.IsZero() {
		receipt.ReadAt = time.Now()
	}

	receiptRef := doc.Ref.Collection("receipts").Doc(receipt.UserID)
	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(receiptRef); err == nil {
			return nil // already read, idempotent
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Set(receiptRef, receipt); err != nil {
			return err
		}
		return tx.Update(doc.Ref, []firestore.Update{
			{Path: "readBy", Value: firestore.ArrayUnion(receipt.UserID)},
		})
	})
	if err != nil {
		return errors.Internal("Failed to create read receipt", err)
	}

	return nil
}

func (r *firestoreMessagingRepository) HasReadReceipt(ctx context.Context, messageID, userID string) (bool, error) {
	_, data, err := r.getMessageDoc(ctx, messageID)
	if err != nil {
		return false, err
	}

	for _, reader := range data.ReadBy {
		if reader == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *firestoreMessagingRepository) ListReceiptsByMessage(ctx context.Context, messageID string) ([]*entity.ReadReceipt, error) {
	doc, _, err := r.getMessageDoc(ctx, messageID)
	if err != nil {
		return nil, err
	}

	iter := doc.Ref.Collection("receipts").Documents(ctx)
	var receipts []*entity.ReadReceipt
	for {
		receiptDoc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate receipts", err)
		}

		var receipt entity.ReadReceipt
		if err := receiptDoc.DataTo(&receipt); err != nil {
			return nil, errors.Internal("Failed to parse receipt data", err)
		}
		receipts = append(receipts, &receipt)
	}

	return receipts, nil
}

func (r *firestoreMessagingRepository) ListUnreadMessages(ctx context.Context, threadID, userID string) ([]*entity.Message, error) {
	messages, err := r.listMessageDocs(ctx, threadID)
	if err != nil {
		return nil, err
	}

	var unread []*entity.Message
	for _, data := range messages {
		if data.SenderID == userID || containsString(data.ReadBy, userID) {
			continue
		}
		unread = append(unread, data.toEntity())
	}
	return unread, nil
}

func (r *firestoreMessagingRepository) CountUnread(ctx context.Context, threadID, userID string) (int, error) {
	messages, err := r.listMessageDocs(ctx, threadID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, data := range messages {
		if data.SenderID == userID || containsString(data.ReadBy, userID) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *firestoreMessagingRepository) CountUnreadByThread(ctx context.Context, userID string) (map[string]int, error) {
	threads, _, err := r.ListThreadsByUser(ctx, userID, repository.ThreadFilter{}, 0, 0)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(threads))
	for _, thread := range threads {
		count, err := r.CountUnread(ctx, thread.ID, userID)
		if err != nil {
			return nil, err
		}
		counts[thread.ID] = count
	}
	return counts, nil
}

func (r *firestoreMessagingRepository) listMessageDocs(ctx context.Context, threadID string) ([]*messageDoc, error) {
	if _, err := r.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	iter := r.threadRef(threadID).Collection("messages").Documents(ctx)
	var messages []*messageDoc
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var data messageDoc
		if err := doc.DataTo(&data); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &data)
	}

	return messages, nil
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
