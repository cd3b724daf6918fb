package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/grc/internal/models"
)

// notFound converts pgx.ErrNoRows into models.ErrNotFound.
func notFound(err error, typeName, slug string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", typeName, slug, models.ErrNotFound)
	}
	return fmt.Errorf("get %s %q: %w", typeName, slug, err)
}

// ----------------------------------------------------------------------------
// Workflows
// ----------------------------------------------------------------------------

const selectWorkflow = `
SELECT w.id, w.slug, w.title, w.description, w.unit, w.repeat_every,
       w.is_verification_needed, w.notify_on_change, w.status
FROM workflows w`

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	w := &models.Workflow{}
	err := row.Scan(&w.ID, &w.Slug, &w.Title, &w.Description, &w.Unit, &w.RepeatEvery,
		&w.IsVerificationNeeded, &w.NotifyOnChange, &w.Status)
	return w, err
}

// GetWorkflow returns the workflow with slug, including its people.
func (q *Queries) GetWorkflow(ctx context.Context, slug string) (*models.Workflow, error) {
	w, err := scanWorkflow(q.db.QueryRow(ctx, selectWorkflow+` WHERE lower(w.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeWorkflow, slug)
	}
	if err := q.loadWorkflowPeople(ctx, []*models.Workflow{w}); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkflows returns every workflow ordered by slug.
func (q *Queries) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := q.db.Query(ctx, selectWorkflow+` ORDER BY w.slug`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	wfs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.Workflow, error) { return scanWorkflow(r) })
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	if err := q.loadWorkflowPeople(ctx, wfs); err != nil {
		return nil, err
	}
	return wfs, nil
}

const selectWorkflowPeople = `
SELECT wp.workflow_id, wp.role, p.id, p.email, p.name
FROM workflow_people wp
JOIN people p ON p.id = wp.person_id
WHERE wp.workflow_id = ANY($1::bigint[])
ORDER BY wp.workflow_id, wp.position`

func (q *Queries) loadWorkflowPeople(ctx context.Context, wfs []*models.Workflow) error {
	if len(wfs) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Workflow, len(wfs))
	ids := make([]int64, len(wfs))
	for i, w := range wfs {
		byID[w.ID] = w
		ids[i] = w.ID
	}

	rows, err := q.db.Query(ctx, selectWorkflowPeople, ids)
	if err != nil {
		return fmt.Errorf("load workflow people: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			wfID int64
			role string
			p    models.Person
		)
		if err := rows.Scan(&wfID, &role, &p.ID, &p.Email, &p.Name); err != nil {
			return fmt.Errorf("scan workflow person: %w", err)
		}
		w := byID[wfID]
		if role == models.RoleWorkflowOwner {
			w.Owners = append(w.Owners, p)
		} else {
			w.Members = append(w.Members, p)
		}
	}
	return rows.Err()
}

const upsertWorkflow = `
INSERT INTO workflows (slug, title, description, unit, repeat_every,
                       is_verification_needed, notify_on_change, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    is_verification_needed = EXCLUDED.is_verification_needed,
    notify_on_change = EXCLUDED.notify_on_change,
    status = EXCLUDED.status,
    updated_at = now()
RETURNING id`

// UpsertWorkflow writes w and its people and sets w.ID. Unit and repeat
// interval are only written on insert.
func (q *Queries) UpsertWorkflow(ctx context.Context, w *models.Workflow) error {
	status := w.Status
	if status == "" {
		status = models.WorkflowDraft
	}
	err := q.db.QueryRow(ctx, upsertWorkflow, w.Slug, w.Title, w.Description, w.Unit, w.RepeatEvery,
		w.IsVerificationNeeded, w.NotifyOnChange, status).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("upsert workflow %s: %w", w.Slug, err)
	}
	return q.replaceWorkflowPeople(ctx, w)
}

func (q *Queries) replaceWorkflowPeople(ctx context.Context, w *models.Workflow) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM workflow_people WHERE workflow_id = $1`, w.ID); err != nil {
		return fmt.Errorf("clear workflow people: %w", err)
	}

	const insert = `
INSERT INTO workflow_people (workflow_id, person_id, role, position)
VALUES ($1, $2, $3, $4)
ON CONFLICT (workflow_id, person_id) DO NOTHING`

	pos := 0
	add := func(people []models.Person, role string) error {
		for _, p := range people {
			if p.ID == 0 {
				return fmt.Errorf("workflow %s: person %s has no id", w.Slug, p.Email)
			}
			if _, err := q.db.Exec(ctx, insert, w.ID, p.ID, role, pos); err != nil {
				return fmt.Errorf("add %s to workflow %s: %w", p.Email, w.Slug, err)
			}
			pos++
		}
		return nil
	}
	if err := add(w.Owners, models.RoleWorkflowOwner); err != nil {
		return err
	}
	return add(w.Members, models.RoleWorkflowMember)
}

const addWorkflowMember = `
INSERT INTO workflow_people (workflow_id, person_id, role, position)
SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0)
FROM workflow_people WHERE workflow_id = $1
ON CONFLICT (workflow_id, person_id) DO NOTHING`

// AddWorkflowMember makes p a member of the workflow with slug. People who
// already hold a role on the workflow keep it.
func (q *Queries) AddWorkflowMember(ctx context.Context, slug string, p models.Person) error {
	if p.ID == 0 {
		return fmt.Errorf("workflow %s: person %s has no id", slug, p.Email)
	}
	var id int64
	err := q.db.QueryRow(ctx, `SELECT id FROM workflows WHERE lower(slug) = lower($1)`, slug).Scan(&id)
	if err != nil {
		return notFound(err, models.TypeWorkflow, slug)
	}
	if _, err := q.db.Exec(ctx, addWorkflowMember, id, p.ID, models.RoleWorkflowMember); err != nil {
		return fmt.Errorf("add %s to workflow %s: %w", p.Email, slug, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Task groups
// ----------------------------------------------------------------------------

const selectTaskGroup = `
SELECT g.id, g.slug, g.title, g.description, g.workflow_id, w.slug,
       c.id, c.email, c.name
FROM task_groups g
JOIN workflows w ON w.id = g.workflow_id
LEFT JOIN people c ON c.id = g.contact_id`

func scanTaskGroup(row pgx.Row) (*models.TaskGroup, error) {
	var (
		g             models.TaskGroup
		cID           pgtype.Int8
		cEmail, cName pgtype.Text
	)
	err := row.Scan(&g.ID, &g.Slug, &g.Title, &g.Description, &g.WorkflowID, &g.WorkflowSlug,
		&cID, &cEmail, &cName)
	g.Contact = contactFrom(cID, cEmail, cName)
	return &g, err
}

// GetTaskGroup returns the task group with slug.
func (q *Queries) GetTaskGroup(ctx context.Context, slug string) (*models.TaskGroup, error) {
	g, err := scanTaskGroup(q.db.QueryRow(ctx, selectTaskGroup+` WHERE lower(g.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeTaskGroup, slug)
	}
	return g, nil
}

// ListTaskGroups returns every task group ordered by slug.
func (q *Queries) ListTaskGroups(ctx context.Context) ([]*models.TaskGroup, error) {
	rows, err := q.db.Query(ctx, selectTaskGroup+` ORDER BY g.slug`)
	if err != nil {
		return nil, fmt.Errorf("list task groups: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.TaskGroup, error) { return scanTaskGroup(r) })
}

const upsertTaskGroup = `
INSERT INTO task_groups (slug, title, description, workflow_id, contact_id)
VALUES ($1, $2, $3, (SELECT id FROM workflows WHERE lower(slug) = lower($4)), $5)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    contact_id = EXCLUDED.contact_id,
    updated_at = now()
RETURNING id, workflow_id`

// UpsertTaskGroup writes g and sets its IDs. The workflow is resolved by
// slug and never changes after insert.
func (q *Queries) UpsertTaskGroup(ctx context.Context, g *models.TaskGroup) error {
	err := q.db.QueryRow(ctx, upsertTaskGroup, g.Slug, g.Title, g.Description, g.WorkflowSlug, contactID(g)).
		Scan(&g.ID, &g.WorkflowID)
	if err != nil {
		return fmt.Errorf("upsert task group %s: %w", g.Slug, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Task group tasks
// ----------------------------------------------------------------------------

const selectTask = `
SELECT t.id, t.slug, t.title, t.description, t.task_type, t.response_options,
       t.task_group_id, g.slug, t.start_date, t.end_date,
       c.id, c.email, c.name
FROM task_group_tasks t
JOIN task_groups g ON g.id = t.task_group_id
LEFT JOIN people c ON c.id = t.contact_id`

func scanTask(row pgx.Row) (*models.TaskGroupTask, error) {
	var (
		t             models.TaskGroupTask
		start, end    pgtype.Date
		cID           pgtype.Int8
		cEmail, cName pgtype.Text
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Title, &t.Description, &t.TaskType, &t.ResponseOptions,
		&t.TaskGroupID, &t.TaskGroupSlug, &start, &end, &cID, &cEmail, &cName)
	t.StartDate, t.EndDate = fromDate(start), fromDate(end)
	t.Contact = contactFrom(cID, cEmail, cName)
	return &t, err
}

// GetTaskGroupTask returns the task with slug.
func (q *Queries) GetTaskGroupTask(ctx context.Context, slug string) (*models.TaskGroupTask, error) {
	t, err := scanTask(q.db.QueryRow(ctx, selectTask+` WHERE lower(t.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeTaskGroupTask, slug)
	}
	return t, nil
}

// ListTaskGroupTasks returns every task ordered by slug.
func (q *Queries) ListTaskGroupTasks(ctx context.Context) ([]*models.TaskGroupTask, error) {
	rows, err := q.db.Query(ctx, selectTask+` ORDER BY t.slug`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.TaskGroupTask, error) { return scanTask(r) })
}

const upsertTask = `
INSERT INTO task_group_tasks (slug, title, description, task_type, response_options,
                              task_group_id, contact_id, start_date, end_date)
VALUES ($1, $2, $3, $4, $5, (SELECT id FROM task_groups WHERE lower(slug) = lower($6)), $7, $8, $9)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    task_type = EXCLUDED.task_type,
    response_options = EXCLUDED.response_options,
    contact_id = EXCLUDED.contact_id,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    updated_at = now()
RETURNING id, task_group_id`

// UpsertTaskGroupTask writes t and sets its IDs.
func (q *Queries) UpsertTaskGroupTask(ctx context.Context, t *models.TaskGroupTask) error {
	options := t.ResponseOptions
	if options == nil {
		options = []string{}
	}
	err := q.db.QueryRow(ctx, upsertTask, t.Slug, t.Title, t.Description, t.TaskType, options,
		t.TaskGroupSlug, contactID(t), toDate(t.StartDate), toDate(t.EndDate)).
		Scan(&t.ID, &t.TaskGroupID)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.Slug, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Cycles
// ----------------------------------------------------------------------------

const selectCycle = `
SELECT cy.id, cy.slug, cy.title, cy.description, cy.workflow_id, w.slug, cy.status,
       cy.is_verification_needed, cy.is_current, cy.start_date, cy.end_date, cy.next_due_date,
       c.id, c.email, c.name
FROM cycles cy
JOIN workflows w ON w.id = cy.workflow_id
LEFT JOIN people c ON c.id = cy.contact_id`

func scanCycle(row pgx.Row) (*models.Cycle, error) {
	var (
		cy              models.Cycle
		start, end, due pgtype.Date
		cID             pgtype.Int8
		cEmail, cName   pgtype.Text
	)
	err := row.Scan(&cy.ID, &cy.Slug, &cy.Title, &cy.Description, &cy.WorkflowID, &cy.WorkflowSlug,
		&cy.Status, &cy.IsVerificationNeeded, &cy.IsCurrent, &start, &end, &due,
		&cID, &cEmail, &cName)
	cy.StartDate, cy.EndDate, cy.NextDueDate = fromDate(start), fromDate(end), fromDate(due)
	cy.Contact = contactFrom(cID, cEmail, cName)
	return &cy, err
}

// GetCycle returns the cycle with slug.
func (q *Queries) GetCycle(ctx context.Context, slug string) (*models.Cycle, error) {
	cy, err := scanCycle(q.db.QueryRow(ctx, selectCycle+` WHERE lower(cy.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeCycle, slug)
	}
	return cy, nil
}

// ListCycles returns every cycle ordered by slug.
func (q *Queries) ListCycles(ctx context.Context) ([]*models.Cycle, error) {
	rows, err := q.db.Query(ctx, selectCycle+` ORDER BY cy.slug`)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.Cycle, error) { return scanCycle(r) })
}

const upsertCycle = `
INSERT INTO cycles (slug, title, description, workflow_id, contact_id, status,
                    is_verification_needed, is_current, start_date, end_date, next_due_date)
VALUES ($1, $2, $3, (SELECT id FROM workflows WHERE lower(slug) = lower($4)), $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    contact_id = EXCLUDED.contact_id,
    status = EXCLUDED.status,
    is_current = EXCLUDED.is_current,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    next_due_date = EXCLUDED.next_due_date,
    updated_at = now()
RETURNING id, workflow_id`

// UpsertCycle writes cy and sets its IDs.
func (q *Queries) UpsertCycle(ctx context.Context, cy *models.Cycle) error {
	err := q.db.QueryRow(ctx, upsertCycle, cy.Slug, cy.Title, cy.Description, cy.WorkflowSlug,
		contactID(cy), cy.Status, cy.IsVerificationNeeded, cy.IsCurrent,
		toDate(cy.StartDate), toDate(cy.EndDate), toDate(cy.NextDueDate)).
		Scan(&cy.ID, &cy.WorkflowID)
	if err != nil {
		return fmt.Errorf("upsert cycle %s: %w", cy.Slug, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Cycle tasks
// ----------------------------------------------------------------------------

const selectCycleTask = `
SELECT ct.id, ct.slug, ct.title, ct.description, ct.cycle_id, cy.slug, w.slug, ct.status,
       ct.is_verification_needed, ct.start_date, ct.end_date, ct.finished_date, ct.verified_date,
       c.id, c.email, c.name
FROM cycle_tasks ct
JOIN cycles cy ON cy.id = ct.cycle_id
JOIN workflows w ON w.id = cy.workflow_id
LEFT JOIN people c ON c.id = ct.contact_id`

func scanCycleTask(row pgx.Row) (*models.CycleTask, error) {
	var (
		t                          models.CycleTask
		start, end, done, verified pgtype.Date
		cID                        pgtype.Int8
		cEmail, cName              pgtype.Text
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Title, &t.Description, &t.CycleID, &t.CycleSlug, &t.WorkflowSlug,
		&t.Status, &t.IsVerificationNeeded, &start, &end, &done, &verified,
		&cID, &cEmail, &cName)
	t.StartDate, t.EndDate = fromDate(start), fromDate(end)
	t.FinishedDate, t.VerifiedDate = fromDate(done), fromDate(verified)
	t.Contact = contactFrom(cID, cEmail, cName)
	return &t, err
}

// GetCycleTask returns the cycle task with slug.
func (q *Queries) GetCycleTask(ctx context.Context, slug string) (*models.CycleTask, error) {
	t, err := scanCycleTask(q.db.QueryRow(ctx, selectCycleTask+` WHERE lower(ct.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeCycleTask, slug)
	}
	return t, nil
}

// ListCycleTasks returns every cycle task ordered by slug.
func (q *Queries) ListCycleTasks(ctx context.Context) ([]*models.CycleTask, error) {
	rows, err := q.db.Query(ctx, selectCycleTask+` ORDER BY ct.slug`)
	if err != nil {
		return nil, fmt.Errorf("list cycle tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.CycleTask, error) { return scanCycleTask(r) })
}

const upsertCycleTask = `
INSERT INTO cycle_tasks (slug, title, description, cycle_id, contact_id, status,
                         is_verification_needed, start_date, end_date, finished_date, verified_date)
VALUES ($1, $2, $3, (SELECT id FROM cycles WHERE lower(slug) = lower($4)), $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    contact_id = EXCLUDED.contact_id,
    status = EXCLUDED.status,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    finished_date = EXCLUDED.finished_date,
    verified_date = EXCLUDED.verified_date,
    updated_at = now()
RETURNING id, cycle_id`

// UpsertCycleTask writes t and sets its IDs.
func (q *Queries) UpsertCycleTask(ctx context.Context, t *models.CycleTask) error {
	err := q.db.QueryRow(ctx, upsertCycleTask, t.Slug, t.Title, t.Description, t.CycleSlug,
		contactID(t), t.Status, t.IsVerificationNeeded,
		toDate(t.StartDate), toDate(t.EndDate), toDate(t.FinishedDate), toDate(t.VerifiedDate)).
		Scan(&t.ID, &t.CycleID)
	if err != nil {
		return fmt.Errorf("upsert cycle task %s: %w", t.Slug, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Vendors
// ----------------------------------------------------------------------------

const selectVendor = `
SELECT v.id, v.slug, v.title, v.description, v.url, v.reference_url, v.start_date, v.end_date
FROM vendors v`

func scanVendor(row pgx.Row) (*models.Vendor, error) {
	var (
		v          models.Vendor
		start, end pgtype.Date
	)
	err := row.Scan(&v.ID, &v.Slug, &v.Title, &v.Description, &v.URL, &v.ReferenceURL, &start, &end)
	v.StartDate, v.EndDate = fromDate(start), fromDate(end)
	return &v, err
}

// GetVendor returns the vendor with slug.
func (q *Queries) GetVendor(ctx context.Context, slug string) (*models.Vendor, error) {
	v, err := scanVendor(q.db.QueryRow(ctx, selectVendor+` WHERE lower(v.slug) = lower($1)`, slug))
	if err != nil {
		return nil, notFound(err, models.TypeVendor, slug)
	}
	return v, nil
}

// ListVendors returns every vendor ordered by slug.
func (q *Queries) ListVendors(ctx context.Context) ([]*models.Vendor, error) {
	rows, err := q.db.Query(ctx, selectVendor+` ORDER BY v.slug`)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (*models.Vendor, error) { return scanVendor(r) })
}

const upsertVendor = `
INSERT INTO vendors (slug, title, description, url, reference_url, start_date, end_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT ((lower(slug))) DO UPDATE SET
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    url = EXCLUDED.url,
    reference_url = EXCLUDED.reference_url,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    updated_at = now()
RETURNING id`

// UpsertVendor writes v and sets its ID.
func (q *Queries) UpsertVendor(ctx context.Context, v *models.Vendor) error {
	err := q.db.QueryRow(ctx, upsertVendor, v.Slug, v.Title, v.Description, v.URL, v.ReferenceURL,
		toDate(v.StartDate), toDate(v.EndDate)).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("upsert vendor %s: %w", v.Slug, err)
	}
	return nil
}
