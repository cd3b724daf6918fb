package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/metrics"
	"github.com/JonMunkholm/grc/internal/models"
)

var _ core.Notifier = (*Service)(nil)

// Service prepares and delivers notifications.
type Service struct {
	store  Store
	queue  Queue
	mailer Mailer
	cfg    Config
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewService returns a service. A nil mailer logs mail instead of sending it.
func NewService(store Store, queue Queue, mailer Mailer, cfg Config) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &Service{store: store, queue: queue, mailer: mailer, cfg: cfg, now: time.Now}
}

// NotifyImported queues a creation email for every created record that has
// a contact, and a change email to the people of workflows that asked for
// real-time updates.
func (s *Service) NotifyImported(ctx context.Context, objects []core.CommittedObject) error {
	var errs []error
	for _, c := range objects {
		switch {
		case c.Action == core.ActionCreated:
			if core.ContactOf(c.Object) == nil {
				continue
			}
			if _, err := s.PrepareEmail(ctx, c.Object.TypeName(), c.Object.GetSlug()); err != nil {
				errs = append(errs, err)
			}
		case c.Action == core.ActionUpdated:
			wf, ok := c.Object.(*models.Workflow)
			if !ok || !wf.NotifyOnChange {
				continue
			}
			if err := s.enqueueWorkflowChange(ctx, wf); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) enqueueWorkflowChange(ctx context.Context, wf *models.Workflow) error {
	to := models.Emails(append(append([]models.Person(nil), wf.Owners...), wf.Members...))
	if len(to) == 0 {
		return nil
	}
	return s.queue.Enqueue(ctx, &Message{
		Kind:       KindEmail,
		ObjectType: wf.TypeName(),
		ObjectSlug: wf.Slug,
		Recipients: to,
		Subject:    fmt.Sprintf("Workflow %s updated", wf.Title),
		Body:       fmt.Sprintf("Workflow: %s : %s was updated", wf.Title, s.link(wf)),
	})
}

// ModifyStatus validates and stores a new status for a record. Status
// changes of cycle tasks are announced to the assignee and the workflow
// managers.
func (s *Service) ModifyStatus(ctx context.Context, typeName, slug, status string) (models.Object, error) {
	obj, err := s.store.Find(ctx, typeName, slug)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(models.Stateful)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotStateful, typeName)
	}
	prev := st.GetStatus()
	if err := models.ChangeStatus(st, status); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, obj); err != nil {
		return nil, fmt.Errorf("save %s %s: %w", typeName, slug, err)
	}

	logging.FromContext(ctx).Info("status changed",
		"object_type", typeName, "slug", slug, "from", prev, "to", status)

	if task, ok := obj.(*models.CycleTask); ok && prev != status {
		if err := s.enqueueTaskStatus(ctx, task, prev); err != nil {
			return obj, err
		}
	}
	return obj, nil
}

func (s *Service) enqueueTaskStatus(ctx context.Context, task *models.CycleTask, prev string) error {
	var to []models.Person
	if task.Contact != nil {
		to = append(to, *task.Contact)
	}
	if task.WorkflowSlug != "" {
		if o, err := s.store.Find(ctx, models.TypeWorkflow, task.WorkflowSlug); err == nil {
			for _, p := range o.(*models.Workflow).Owners {
				if !containsEmail(to, p.Email) {
					to = append(to, p)
				}
			}
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	if len(to) == 0 {
		return nil
	}
	return s.queue.Enqueue(ctx, &Message{
		Kind:       KindDigest,
		ObjectType: task.TypeName(),
		ObjectSlug: task.Slug,
		Recipients: models.Emails(to),
		Subject:    fmt.Sprintf("Task %s is %s", task.Title, task.Status),
		Body: fmt.Sprintf("Task: %s : %s moved from %s to %s",
			task.Title, s.link(task), prev, task.Status),
	})
}

// PrepareEmail queues an immediate "created" email to the record's contact.
func (s *Service) PrepareEmail(ctx context.Context, typeName, slug string) (*Message, error) {
	obj, contact, err := s.withContact(ctx, typeName, slug)
	if err != nil {
		return nil, err
	}
	m := &Message{
		Kind:       KindEmail,
		ObjectType: typeName,
		ObjectSlug: obj.GetSlug(),
		Recipients: []string{contact.Email},
		Subject:    fmt.Sprintf("%s %s created", typeName, title(obj)),
		Body:       fmt.Sprintf("%s: %s : %s created", typeName, title(obj), s.link(obj)),
	}
	if err := s.queue.Enqueue(ctx, m); err != nil {
		return nil, fmt.Errorf("queue email: %w", err)
	}
	return m, nil
}

// PrepareDigest queues a digest entry about the record for its contact.
func (s *Service) PrepareDigest(ctx context.Context, typeName, slug string) (*Message, error) {
	obj, contact, err := s.withContact(ctx, typeName, slug)
	if err != nil {
		return nil, err
	}
	m := &Message{
		Kind:       KindDigest,
		ObjectType: typeName,
		ObjectSlug: obj.GetSlug(),
		Recipients: []string{contact.Email},
		Subject:    fmt.Sprintf("%s Email Digest for %s", typeName, s.now().Format("2006/01/02")),
		Body:       fmt.Sprintf("%s: %s : %s", typeName, title(obj), s.link(obj)),
	}
	if err := s.queue.Enqueue(ctx, m); err != nil {
		return nil, fmt.Errorf("queue digest: %w", err)
	}
	return m, nil
}

func (s *Service) withContact(ctx context.Context, typeName, slug string) (models.Object, *models.Person, error) {
	obj, err := s.store.Find(ctx, typeName, slug)
	if err != nil {
		return nil, nil, err
	}
	contact := core.ContactOf(obj)
	if contact == nil || contact.Email == "" {
		return nil, nil, fmt.Errorf("%w: %s %s has no contact", ErrNoRecipient, typeName, slug)
	}
	return obj, contact, nil
}

// NotifyEmail delivers every pending immediate email and returns how many
// were sent. Messages that fail stay queued.
func (s *Service) NotifyEmail(ctx context.Context) (int, error) {
	pending, err := s.queue.Pending(ctx, KindEmail)
	if err != nil {
		return 0, fmt.Errorf("load pending email: %w", err)
	}

	var (
		sent []uuid.UUID
		errs []error
	)
	for _, m := range pending {
		err := s.mailer.Send(ctx, Mail{From: s.cfg.Sender, To: m.Recipients, Subject: m.Subject, Body: m.Body})
		metrics.ObserveNotification(KindEmail, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", m.ID, err))
			continue
		}
		sent = append(sent, m.ID)
	}
	if len(sent) > 0 {
		if err := s.queue.MarkSent(ctx, sent); err != nil {
			errs = append(errs, err)
		}
	}
	return len(sent), errors.Join(errs...)
}

// NotifyDigest runs the periodic checks, then sends one digest per
// recipient covering every pending digest entry. Returns the number of
// digests sent.
func (s *Service) NotifyDigest(ctx context.Context) (int, error) {
	if err := s.RunChecks(ctx); err != nil {
		return 0, err
	}

	pending, err := s.queue.Pending(ctx, KindDigest)
	if err != nil {
		return 0, fmt.Errorf("load pending digest: %w", err)
	}

	byRecipient := make(map[string][]Message)
	for _, m := range pending {
		for _, r := range m.Recipients {
			key := strings.ToLower(r)
			byRecipient[key] = append(byRecipient[key], m)
		}
	}
	recipients := make([]string, 0, len(byRecipient))
	for r := range byRecipient {
		recipients = append(recipients, r)
	}
	sort.Strings(recipients)

	subject := "GRC Email Digest for " + s.now().Format("2006/01/02")
	failed := make(map[uuid.UUID]bool)
	var errs []error
	sentCount := 0
	for _, r := range recipients {
		msgs := byRecipient[r]
		var body strings.Builder
		for _, m := range msgs {
			body.WriteString(m.Subject)
			body.WriteString("\n  ")
			body.WriteString(m.Body)
			body.WriteString("\n")
		}
		err := s.mailer.Send(ctx, Mail{From: s.cfg.Sender, To: []string{r}, Subject: subject, Body: body.String()})
		metrics.ObserveNotification(KindDigest, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send digest to %s: %w", r, err))
			for _, m := range msgs {
				failed[m.ID] = true
			}
			continue
		}
		sentCount++
	}

	var done []uuid.UUID
	for _, m := range pending {
		if !failed[m.ID] {
			done = append(done, m.ID)
		}
	}
	if len(done) > 0 {
		if err := s.queue.MarkSent(ctx, done); err != nil {
			errs = append(errs, err)
		}
	}

	logging.FromContext(ctx).Info("digest sent", "recipients", sentCount, "entries", len(pending))
	return sentCount, errors.Join(errs...)
}

// RunChecks queues digest entries for overdue cycle tasks, cycles due soon
// and cycles starting soon.
func (s *Service) RunChecks(ctx context.Context) error {
	today := s.now()

	tasks, err := s.store.List(ctx, models.TypeCycleTask)
	if err != nil {
		return fmt.Errorf("list cycle tasks: %w", err)
	}
	for _, o := range tasks {
		t := o.(*models.CycleTask)
		if t.Contact == nil || !t.IsOverdue(today) {
			continue
		}
		err := s.queue.Enqueue(ctx, &Message{
			Kind:       KindDigest,
			ObjectType: t.TypeName(),
			ObjectSlug: t.Slug,
			Recipients: []string{t.Contact.Email},
			Subject:    fmt.Sprintf("Task %s is overdue", t.Title),
			Body:       fmt.Sprintf("Task: %s : %s was due on %s", t.Title, s.link(t), core.FormatDate(t.EndDate)),
		})
		if err != nil {
			return err
		}
	}

	cycles, err := s.store.List(ctx, models.TypeCycle)
	if err != nil {
		return fmt.Errorf("list cycles: %w", err)
	}
	for _, o := range cycles {
		c := o.(*models.Cycle)
		var subject, body string
		switch {
		case c.IsDueWithin(today, s.cfg.CycleDueDays):
			subject = fmt.Sprintf("Cycle %s is due soon", c.Title)
			body = fmt.Sprintf("Cycle: %s : %s is due on %s", c.Title, s.link(c), core.FormatDate(c.NextDueDate))
		case c.StartsWithin(today, s.cfg.CycleStartingDays):
			subject = fmt.Sprintf("Cycle %s is starting soon", c.Title)
			body = fmt.Sprintf("Cycle: %s : %s starts on %s", c.Title, s.link(c), core.FormatDate(c.StartDate))
		default:
			continue
		}
		to, err := s.cycleRecipients(ctx, c)
		if err != nil {
			return err
		}
		if len(to) == 0 {
			continue
		}
		err = s.queue.Enqueue(ctx, &Message{
			Kind:       KindDigest,
			ObjectType: c.TypeName(),
			ObjectSlug: c.Slug,
			Recipients: to,
			Subject:    subject,
			Body:       body,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// cycleRecipients returns the cycle contact and the workflow people.
func (s *Service) cycleRecipients(ctx context.Context, c *models.Cycle) ([]string, error) {
	var people []models.Person
	if c.Contact != nil {
		people = append(people, *c.Contact)
	}
	if c.WorkflowSlug != "" {
		o, err := s.store.Find(ctx, models.TypeWorkflow, c.WorkflowSlug)
		switch {
		case err == nil:
			wf := o.(*models.Workflow)
			for _, p := range append(append([]models.Person(nil), wf.Owners...), wf.Members...) {
				if !containsEmail(people, p.Email) {
					people = append(people, p)
				}
			}
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	return models.Emails(people), nil
}

// StartDigest schedules NotifyDigest on the standard cron spec.
func (s *Service) StartDigest(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("digest scheduler already running")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, s.runScheduledDigest); err != nil {
		return fmt.Errorf("schedule digest %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Service) runScheduledDigest() {
	ctx := context.Background()
	n, err := s.NotifyDigest(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("scheduled digest failed", "sent", n, "error", err)
	}
}

// StopDigest stops the scheduler and waits for a running digest, up to the
// context deadline.
func (s *Service) StopDigest(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		logging.FromContext(ctx).Warn("digest scheduler shutdown timed out")
	}
}

func (s *Service) link(o models.Object) string {
	return fmt.Sprintf("%s%s/%d", s.cfg.BaseURL, tablePlural[o.TypeName()], o.GetID())
}

func title(o models.Object) string {
	if t, ok := o.(models.Titled); ok {
		return t.GetTitle()
	}
	return o.GetSlug()
}

func containsEmail(people []models.Person, email string) bool {
	for _, p := range people {
		if strings.EqualFold(p.Email, email) {
			return true
		}
	}
	return false
}
