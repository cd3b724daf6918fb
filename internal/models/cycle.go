package models

import "time"

// Cycle is one run of a workflow.
type Cycle struct {
	Base
	Assignee
	Dates
	WorkflowID           int64
	WorkflowSlug         string
	Status               string
	IsVerificationNeeded bool
	IsCurrent            bool
	NextDueDate          time.Time
}

func (c *Cycle) TypeName() string { return TypeCycle }

func (c *Cycle) Clone() Object {
	cp := *c
	cp.Assignee = c.Assignee.clone()
	return &cp
}

func (c *Cycle) GetStatus() string { return c.Status }
func (c *Cycle) SetStatus(status string) { c.Status = status }
func (c *Cycle) ValidStatuses() []string { return CycleStates(c.IsVerificationNeeded) }
func (c *Cycle) DoneStatus() string { return doneStatus(c.IsVerificationNeeded) }

// IsDueWithin reports whether the cycle is still open and due in the next
// days days (inclusive of today).
func (c *Cycle) IsDueWithin(today time.Time, days int) bool {
	if c.NextDueDate.IsZero() || IsDone(c) {
		return false
	}
	due := dateOnly(c.NextDueDate)
	today = dateOnly(today)
	return !due.Before(today) && !due.After(today.AddDate(0, 0, days))
}

// StartsWithin reports whether the cycle starts after today but within days days.
func (c *Cycle) StartsWithin(today time.Time, days int) bool {
	if c.StartDate.IsZero() {
		return false
	}
	start := dateOnly(c.StartDate)
	today = dateOnly(today)
	return start.After(today) && !start.After(today.AddDate(0, 0, days))
}

// CycleTask is a task spawned for a cycle.
type CycleTask struct {
	Base
	Assignee
	Dates
	CycleID              int64
	CycleSlug            string
	WorkflowSlug         string
	Status               string
	IsVerificationNeeded bool
	FinishedDate         time.Time
	VerifiedDate         time.Time
}

func (t *CycleTask) TypeName() string { return TypeCycleTask }

func (t *CycleTask) Clone() Object {
	c := *t
	c.Assignee = t.Assignee.clone()
	return &c
}

func (t *CycleTask) GetStatus() string { return t.Status }
func (t *CycleTask) ValidStatuses() []string { return CycleTaskStates(t.IsVerificationNeeded) }
func (t *CycleTask) DoneStatus() string { return doneStatus(t.IsVerificationNeeded) }

// SetStatus also stamps the finished and verified dates on the transitions
// that reach them.
func (t *CycleTask) SetStatus(status string) {
	now := dateOnly(time.Now())
	switch status {
	case StatusFinished:
		t.FinishedDate = now
		t.VerifiedDate = time.Time{}
	case StatusVerified:
		if t.FinishedDate.IsZero() {
			t.FinishedDate = now
		}
		t.VerifiedDate = now
	case StatusAssigned, StatusInProgress, StatusDeclined:
		t.FinishedDate = time.Time{}
		t.VerifiedDate = time.Time{}
	}
	t.Status = status
}

// IsOverdue reports whether the task is not done and its end date has passed.
func (t *CycleTask) IsOverdue(today time.Time) bool {
	if IsDone(t) {
		return false
	}
	end := t.EndDate
	if end.IsZero() {
		return false
	}
	return dateOnly(end).Before(dateOnly(today))
}
