package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/models"
)

var _ core.Store = (*Store)(nil)

// Store is the PostgreSQL implementation of core.Store.
type Store struct {
	pool *pgxpool.Pool
	q    *Queries
}

// NewStore returns a store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: New(pool)}
}

// Queries exposes the non-transactional queries.
func (s *Store) Queries() *Queries { return s.q }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Find implements core.Store.
func (s *Store) Find(ctx context.Context, typeName, slug string) (models.Object, error) {
	return s.q.Find(ctx, typeName, slug)
}

// FindPeople implements core.Store.
func (s *Store) FindPeople(ctx context.Context, emails []string) ([]models.Person, error) {
	return s.q.GetPeopleByEmails(ctx, emails)
}

// List implements core.Store.
func (s *Store) List(ctx context.Context, typeName string) ([]models.Object, error) {
	return s.q.List(ctx, typeName)
}

// Save writes one record outside of an import.
func (s *Store) Save(ctx context.Context, o models.Object) error {
	return s.q.Save(ctx, o)
}

// CommitBlock implements core.Store. The block runs in one transaction and
// every row under its own savepoint, so a failing row is rolled back
// without losing its neighbours.
func (s *Store) CommitBlock(ctx context.Context, rows []core.StagedRow) ([]error, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := s.q.WithTx(tx)
	errs := make([]error, len(rows))
	failed := 0

	for i, row := range rows {
		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if err := saveRow(ctx, q, row); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			errs[i] = err
			failed++
			continue
		}

		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	logging.FromContext(ctx).Debug("block committed", "rows", len(rows), "failed", failed)
	return errs, nil
}

func saveRow(ctx context.Context, q *Queries, row core.StagedRow) error {
	for _, o := range row.Objects {
		if err := q.Save(ctx, o); err != nil {
			return err
		}
	}
	for _, m := range row.Joins {
		if err := q.AddWorkflowMember(ctx, m.Workflow, m.Person); err != nil {
			return err
		}
	}
	return nil
}

// LogImport records the outcome of an import run.
func (s *Store) LogImport(ctx context.Context, res *core.ImportResult, subject string, started time.Time) error {
	created, updated, ignored, failed := res.Totals()
	entry := &ImportLogEntry{
		FileName:  res.FileName,
		Subject:   subject,
		DryRun:    res.DryRun,
		Created:   created,
		Updated:   updated,
		Ignored:   ignored,
		Failed:    failed,
		StartedAt: started,
	}
	entry.Errors, entry.Warnings = countDiagnostics(res)
	return s.q.InsertImportLog(ctx, entry)
}

func countDiagnostics(res *core.ImportResult) (errs, warnings int) {
	count := func(ds []core.Diagnostic) {
		for _, d := range ds {
			if d.Severity == core.SeverityError {
				errs++
			} else {
				warnings++
			}
		}
	}
	count(res.Errors)
	count(res.Warnings)
	for _, b := range res.Blocks {
		count(b.BlockErrors)
		count(b.BlockWarnings)
		for _, r := range b.Rows {
			count(r.Diagnostics)
		}
	}
	return errs, warnings
}

// Find loads a record of typeName by slug.
func (q *Queries) Find(ctx context.Context, typeName, slug string) (models.Object, error) {
	switch typeName {
	case models.TypeWorkflow:
		return one(q.GetWorkflow(ctx, slug))
	case models.TypeTaskGroup:
		return one(q.GetTaskGroup(ctx, slug))
	case models.TypeTaskGroupTask:
		return one(q.GetTaskGroupTask(ctx, slug))
	case models.TypeCycle:
		return one(q.GetCycle(ctx, slug))
	case models.TypeCycleTask:
		return one(q.GetCycleTask(ctx, slug))
	case models.TypeVendor:
		return one(q.GetVendor(ctx, slug))
	}
	return nil, fmt.Errorf("find %s: %w", typeName, core.ErrUnknownObjectType)
}

// List loads every record of typeName ordered by slug.
func (q *Queries) List(ctx context.Context, typeName string) ([]models.Object, error) {
	switch typeName {
	case models.TypeWorkflow:
		return objects(q.ListWorkflows(ctx))
	case models.TypeTaskGroup:
		return objects(q.ListTaskGroups(ctx))
	case models.TypeTaskGroupTask:
		return objects(q.ListTaskGroupTasks(ctx))
	case models.TypeCycle:
		return objects(q.ListCycles(ctx))
	case models.TypeCycleTask:
		return objects(q.ListCycleTasks(ctx))
	case models.TypeVendor:
		return objects(q.ListVendors(ctx))
	}
	return nil, fmt.Errorf("list %s: %w", typeName, core.ErrUnknownObjectType)
}

// Save upserts o by slug and sets its ID.
func (q *Queries) Save(ctx context.Context, o models.Object) error {
	switch v := o.(type) {
	case *models.Workflow:
		return q.UpsertWorkflow(ctx, v)
	case *models.TaskGroup:
		return q.UpsertTaskGroup(ctx, v)
	case *models.TaskGroupTask:
		return q.UpsertTaskGroupTask(ctx, v)
	case *models.Cycle:
		return q.UpsertCycle(ctx, v)
	case *models.CycleTask:
		return q.UpsertCycleTask(ctx, v)
	case *models.Vendor:
		return q.UpsertVendor(ctx, v)
	}
	return fmt.Errorf("save %s: %w", o.TypeName(), core.ErrUnknownObjectType)
}

// one avoids returning a typed nil inside a non-nil interface.
func one[T models.Object](o T, err error) (models.Object, error) {
	if err != nil {
		return nil, err
	}
	return o, nil
}

func objects[T models.Object](list []T, err error) ([]models.Object, error) {
	if err != nil {
		return nil, err
	}
	out := make([]models.Object, len(list))
	for i, o := range list {
		out[i] = o
	}
	return out, nil
}
