// Package notification queues and delivers email about GRC records.
//
// Messages are queued as either immediate emails or digest entries. Immediate
// emails are delivered one by one by NotifyEmail; digest entries are grouped
// per recipient by NotifyDigest, which first runs the periodic workflow
// checks (overdue tasks, cycles due soon, cycles starting soon).
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/grc/internal/models"
)

// Message kinds.
const (
	KindEmail  = "email"
	KindDigest = "digest"
)

// ErrNoRecipient is returned when a record has nobody to notify.
var ErrNoRecipient = errors.New("no recipient")

// ErrNotStateful is returned when a status change targets a record without
// states.
var ErrNotStateful = errors.New("object has no status")

// Message is one queued notification.
type Message struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	ObjectType string    `json:"objectType,omitempty"`
	ObjectSlug string    `json:"objectSlug,omitempty"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Mail is one outgoing email.
type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers mail.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Queue stores messages until they are delivered.
type Queue interface {
	Enqueue(ctx context.Context, m *Message) error
	Pending(ctx context.Context, kind string) ([]Message, error)
	MarkSent(ctx context.Context, ids []uuid.UUID) error
}

// Store loads and saves the records notifications are about.
type Store interface {
	Find(ctx context.Context, typeName, slug string) (models.Object, error)
	List(ctx context.Context, typeName string) ([]models.Object, error)
	Save(ctx context.Context, o models.Object) error
}

// Config controls message content and the digest checks.
type Config struct {
	Sender            string
	BaseURL           string
	CycleDueDays      int
	CycleStartingDays int
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Sender:            "grc@localhost",
		BaseURL:           "http://localhost:8080/",
		CycleDueDays:      3,
		CycleStartingDays: 7,
	}
}

// tablePlural names the URL collection of each object type.
var tablePlural = map[string]string{
	models.TypeWorkflow:      "workflows",
	models.TypeTaskGroup:     "task_groups",
	models.TypeTaskGroupTask: "task_group_tasks",
	models.TypeCycle:         "cycles",
	models.TypeCycleTask:     "cycle_task_group_object_tasks",
	models.TypeVendor:        "vendors",
}
