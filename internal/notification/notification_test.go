package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	fail map[string]bool
}

func (r *recordingMailer) Send(_ context.Context, m Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, to := range m.To {
		if r.fail[to] {
			return errors.New("mailbox unavailable")
		}
	}
	r.sent = append(r.sent, m)
	return nil
}

var today = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *core.MemoryStore, *MemoryQueue, *recordingMailer) {
	t.Helper()
	store := core.NewMemoryStore()
	queue := NewMemoryQueue()
	mailer := &recordingMailer{fail: map[string]bool{}}
	cfg := DefaultConfig()
	cfg.BaseURL = "https://grc.example.com"
	svc := NewService(store, queue, mailer, cfg)
	svc.now = func() time.Time { return today }
	return svc, store, queue, mailer
}

func person(store *core.MemoryStore, email string) *models.Person {
	p := store.AddPerson(models.Person{Email: email})
	return &p
}

func TestPrepareEmail(t *testing.T) {
	svc, store, queue, _ := setup(t)
	ctx := context.Background()

	g := &models.TaskGroup{Base: models.Base{Slug: "TG-1", Title: "Access review"}}
	g.Contact = person(store, "alice@example.com")
	store.Put(g)

	m, err := svc.PrepareEmail(ctx, models.TypeTaskGroup, "tg-1")
	require.NoError(t, err)
	assert.Equal(t, "TaskGroup Access review created", m.Subject)
	assert.Equal(t, fmt.Sprintf("TaskGroup: Access review : https://grc.example.com/task_groups/%d created", g.ID), m.Body)
	assert.Equal(t, []string{"alice@example.com"}, m.Recipients)

	pending, err := queue.Pending(ctx, KindEmail)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPrepareEmail_NoContact(t *testing.T) {
	svc, store, _, _ := setup(t)
	store.Put(&models.TaskGroup{Base: models.Base{Slug: "TG-2", Title: "Nobody"}})
	store.Put(&models.Vendor{Base: models.Base{Slug: "VENDOR-2", Title: "Acme"}})

	_, err := svc.PrepareEmail(context.Background(), models.TypeTaskGroup, "TG-2")
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = svc.PrepareEmail(context.Background(), models.TypeVendor, "VENDOR-2")
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = svc.PrepareEmail(context.Background(), models.TypeVendor, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPrepareDigest(t *testing.T) {
	svc, store, _, _ := setup(t)
	g := &models.TaskGroup{Base: models.Base{Slug: "TG-1", Title: "Access review"}}
	g.Contact = person(store, "bob@example.com")
	store.Put(g)

	m, err := svc.PrepareDigest(context.Background(), models.TypeTaskGroup, "TG-1")
	require.NoError(t, err)
	assert.Equal(t, KindDigest, m.Kind)
	assert.Equal(t, "TaskGroup Email Digest for 2024/03/10", m.Subject)
}

func TestNotifyEmail(t *testing.T) {
	svc, store, _, mailer := setup(t)
	ctx := context.Background()

	for _, e := range []string{"alice@example.com", "bob@example.com"} {
		g := &models.TaskGroup{Base: models.Base{Slug: "TG-" + e[:3], Title: e}}
		g.Contact = person(store, e)
		store.Put(g)
		_, err := svc.PrepareEmail(ctx, models.TypeTaskGroup, g.Slug)
		require.NoError(t, err)
	}
	mailer.fail["bob@example.com"] = true

	n, err := svc.NotifyEmail(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"alice@example.com"}, mailer.sent[0].To)
	assert.Equal(t, "grc@localhost", mailer.sent[0].From)

	// The failed message stays queued and goes out once the mailbox recovers.
	mailer.fail["bob@example.com"] = false
	n, err = svc.NotifyEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.NotifyEmail(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestModifyStatus(t *testing.T) {
	svc, store, queue, _ := setup(t)
	ctx := context.Background()

	wf := &models.Workflow{Base: models.Base{Slug: "WF-1", Title: "Quarterly"}}
	wf.Owners = []models.Person{*person(store, "owner@example.com")}
	store.Put(wf)

	task := &models.CycleTask{Base: models.Base{Slug: "CT-1", Title: "Collect evidence"}, WorkflowSlug: "WF-1"}
	task.Contact = person(store, "alice@example.com")
	task.Status = models.StatusAssigned
	store.Put(task)

	obj, err := svc.ModifyStatus(ctx, models.TypeCycleTask, "CT-1", models.StatusFinished)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, obj.(*models.CycleTask).Status)
	assert.False(t, obj.(*models.CycleTask).FinishedDate.IsZero())

	saved, err := store.Find(ctx, models.TypeCycleTask, "CT-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, saved.(*models.CycleTask).Status)

	pending, err := queue.Pending(ctx, KindDigest)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"alice@example.com", "owner@example.com"}, pending[0].Recipients)
	assert.Contains(t, pending[0].Body, "moved from Assigned to Finished")
}

func TestModifyStatus_Rejected(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()

	store.Put(&models.CycleTask{Base: models.Base{Slug: "CT-2"}, Status: models.StatusAssigned})
	store.Put(&models.Vendor{Base: models.Base{Slug: "V-1"}})

	_, err := svc.ModifyStatus(ctx, models.TypeCycleTask, "CT-2", models.StatusVerified)
	assert.Error(t, err, "verified needs verification")

	_, err = svc.ModifyStatus(ctx, models.TypeVendor, "V-1", models.StatusFinished)
	assert.ErrorIs(t, err, ErrNotStateful)

	saved, err := store.Find(ctx, models.TypeCycleTask, "CT-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, saved.(*models.CycleTask).Status)
}

func TestNotifyDigest_Checks(t *testing.T) {
	svc, store, _, mailer := setup(t)
	ctx := context.Background()

	alice := person(store, "alice@example.com")
	owner := person(store, "owner@example.com")

	wf := &models.Workflow{Base: models.Base{Slug: "WF-1", Title: "Quarterly"}}
	wf.Owners = []models.Person{*owner}
	store.Put(wf)

	overdue := &models.CycleTask{Base: models.Base{Slug: "CT-1", Title: "Late"}, Status: models.StatusInProgress}
	overdue.Contact = alice
	overdue.EndDate = today.AddDate(0, 0, -2)
	store.Put(overdue)

	done := &models.CycleTask{Base: models.Base{Slug: "CT-2", Title: "Done"}, Status: models.StatusFinished}
	done.Contact = alice
	done.EndDate = today.AddDate(0, 0, -2)
	store.Put(done)

	due := &models.Cycle{Base: models.Base{Slug: "CYCLE-1", Title: "March"}, WorkflowSlug: "WF-1", NextDueDate: today.AddDate(0, 0, 3)}
	store.Put(due)

	starting := &models.Cycle{Base: models.Base{Slug: "CYCLE-2", Title: "April"}, WorkflowSlug: "WF-1"}
	starting.StartDate = today.AddDate(0, 0, 7)
	store.Put(starting)

	later := &models.Cycle{Base: models.Base{Slug: "CYCLE-3", Title: "May"}, WorkflowSlug: "WF-1"}
	later.StartDate = today.AddDate(0, 0, 8)
	store.Put(later)

	n, err := svc.NotifyDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bodies := map[string]string{}
	for _, m := range mailer.sent {
		require.Len(t, m.To, 1)
		assert.Equal(t, "GRC Email Digest for 2024/03/10", m.Subject)
		bodies[m.To[0]] = m.Body
	}
	assert.Contains(t, bodies["alice@example.com"], "Task Late is overdue")
	assert.NotContains(t, bodies["alice@example.com"], "Done")
	assert.Contains(t, bodies["owner@example.com"], "Cycle March is due soon")
	assert.Contains(t, bodies["owner@example.com"], "Cycle April is starting soon")
	assert.NotContains(t, bodies["owner@example.com"], "May")
}

func TestNotifyImported(t *testing.T) {
	svc, store, queue, _ := setup(t)
	ctx := context.Background()

	g := &models.TaskGroup{Base: models.Base{Slug: "TG-1", Title: "Access review"}}
	g.Contact = person(store, "alice@example.com")
	store.Put(g)

	wf := &models.Workflow{Base: models.Base{Slug: "WF-1", Title: "Live"}, NotifyOnChange: true}
	wf.Owners = []models.Person{*person(store, "owner@example.com")}
	wf.Members = []models.Person{*person(store, "member@example.com")}

	quiet := &models.Workflow{Base: models.Base{Slug: "WF-2", Title: "Quiet"}}
	quiet.Owners = wf.Owners

	err := svc.NotifyImported(ctx, []core.CommittedObject{
		{Object: g, Action: core.ActionCreated},
		{Object: wf, Action: core.ActionUpdated},
		{Object: quiet, Action: core.ActionUpdated},
		{Object: &models.Vendor{Base: models.Base{Slug: "V-2"}}, Action: core.ActionCreated},
	})
	require.NoError(t, err)

	pending, err := queue.Pending(ctx, KindEmail)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "TaskGroup Access review created", pending[0].Subject)
	assert.Equal(t, "Workflow Live updated", pending[1].Subject)
	assert.ElementsMatch(t, []string{"owner@example.com", "member@example.com"}, pending[1].Recipients)
}

func TestStartDigest(t *testing.T) {
	svc, _, _, _ := setup(t)

	assert.Error(t, svc.StartDigest("not a spec"))
	require.NoError(t, svc.StartDigest("@every 1h"))
	assert.Error(t, svc.StartDigest("@every 1h"), "already running")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.StopDigest(ctx)
	svc.StopDigest(ctx)
}
