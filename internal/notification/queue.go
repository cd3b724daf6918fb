package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/grc/internal/database"
)

// MemoryQueue keeps messages in memory.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []Message
	sent     map[uuid.UUID]bool
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{sent: make(map[uuid.UUID]bool)}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, m *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	q.messages = append(q.messages, *m)
	return nil
}

// Pending implements Queue.
func (q *MemoryQueue) Pending(_ context.Context, kind string) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Message
	for _, m := range q.messages {
		if m.Kind == kind && !q.sent[m.ID] {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkSent implements Queue.
func (q *MemoryQueue) MarkSent(_ context.Context, ids []uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		q.sent[id] = true
	}
	return nil
}

// DBQueue stores messages in the notifications table.
type DBQueue struct {
	q *database.Queries
}

// NewDBQueue returns a queue backed by q.
func NewDBQueue(q *database.Queries) *DBQueue {
	return &DBQueue{q: q}
}

// Enqueue implements Queue.
func (d *DBQueue) Enqueue(ctx context.Context, m *Message) error {
	n := &database.Notification{
		ID:         m.ID,
		Kind:       m.Kind,
		ObjectType: m.ObjectType,
		ObjectSlug: m.ObjectSlug,
		Recipients: m.Recipients,
		Subject:    m.Subject,
		Body:       m.Body,
	}
	if err := d.q.InsertNotification(ctx, n); err != nil {
		return err
	}
	m.ID, m.CreatedAt = n.ID, n.CreatedAt
	return nil
}

// Pending implements Queue.
func (d *DBQueue) Pending(ctx context.Context, kind string) ([]Message, error) {
	rows, err := d.q.ListPendingNotifications(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(rows))
	for i, n := range rows {
		out[i] = Message{
			ID:         n.ID,
			Kind:       n.Kind,
			ObjectType: n.ObjectType,
			ObjectSlug: n.ObjectSlug,
			Recipients: n.Recipients,
			Subject:    n.Subject,
			Body:       n.Body,
			CreatedAt:  n.CreatedAt,
		}
	}
	return out, nil
}

// MarkSent implements Queue.
func (d *DBQueue) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	_, err := d.q.MarkNotificationsSent(ctx, ids)
	return err
}
