package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Notification is a queued email.
type Notification struct {
	ID         uuid.UUID
	Kind       string
	ObjectType string
	ObjectSlug string
	Recipients []string
	Subject    string
	Body       string
	CreatedAt  time.Time
}

const insertNotification = `
INSERT INTO notifications (id, kind, object_type, object_slug, recipients, subject, body)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`

// InsertNotification queues n, assigning an ID when it has none.
func (q *Queries) InsertNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, insertNotification, n.ID, n.Kind, n.ObjectType, n.ObjectSlug,
		n.Recipients, n.Subject, n.Body).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

const listPendingNotifications = `
SELECT id, kind, object_type, object_slug, recipients, subject, body, created_at
FROM notifications
WHERE sent_at IS NULL AND kind = $1
ORDER BY created_at, id`

// ListPendingNotifications returns unsent notifications of kind, oldest first.
func (q *Queries) ListPendingNotifications(ctx context.Context, kind string) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listPendingNotifications, kind)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Notification, error) {
		var (
			n       Notification
			created pgtype.Timestamptz
		)
		err := r.Scan(&n.ID, &n.Kind, &n.ObjectType, &n.ObjectSlug, &n.Recipients, &n.Subject, &n.Body, &created)
		n.CreatedAt = created.Time
		return n, err
	})
}

// MarkNotificationsSent stamps the given notifications as delivered.
func (q *Queries) MarkNotificationsSent(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE notifications SET sent_at = now() WHERE id = ANY($1::uuid[]) AND sent_at IS NULL`, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications sent: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ImportLogEntry records one import run.
type ImportLogEntry struct {
	ID        uuid.UUID
	FileName  string
	Subject   string
	DryRun    bool
	Created   int
	Updated   int
	Ignored   int
	Failed    int
	Errors    int
	Warnings  int
	StartedAt time.Time
}

const insertImportLog = `
INSERT INTO import_log (id, file_name, subject, dry_run, created, updated, ignored, failed,
                        errors, warnings, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// InsertImportLog records e, assigning an ID when it has none.
func (q *Queries) InsertImportLog(ctx context.Context, e *ImportLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := q.db.Exec(ctx, insertImportLog, e.ID, e.FileName, e.Subject, e.DryRun,
		e.Created, e.Updated, e.Ignored, e.Failed, e.Errors, e.Warnings, e.StartedAt)
	if err != nil {
		return fmt.Errorf("insert import log: %w", err)
	}
	return nil
}
