package core

import (
	"context"

	"github.com/JonMunkholm/grc/internal/models"
)

// Store is the persistence boundary of the pipeline.
// Implementations must return records that the caller may mutate freely.
type Store interface {
	// Find returns the record of typeName with the given slug,
	// or models.ErrNotFound.
	Find(ctx context.Context, typeName, slug string) (models.Object, error)

	// FindPeople returns the people whose email is in emails.
	// Unknown emails are simply absent from the result.
	FindPeople(ctx context.Context, emails []string) ([]models.Person, error)

	// List returns all records of typeName ordered by slug.
	List(ctx context.Context, typeName string) ([]models.Object, error)

	// CommitBlock persists the staged rows in one transaction. Each row is
	// written under its own savepoint; the returned slice holds one entry per
	// row (nil on success). A non-nil error means the transaction itself
	// failed and nothing was persisted.
	CommitBlock(ctx context.Context, rows []StagedRow) ([]error, error)
}

// StagedRow is an accepted row waiting for commit.
// Objects holds the row's own record. Joins are memberships the row adds to
// existing workflows; they are inserted on their own so a workflow is never
// rewritten from another row's view of it.
type StagedRow struct {
	Line    int
	Objects []models.Object
	Joins   []Membership
}

// Membership adds Person as a member of the workflow with slug Workflow.
// Stores skip people who already hold a role on the workflow.
type Membership struct {
	Workflow string
	Person   models.Person
}

// Action is the outcome for one imported row.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionIgnored Action = "ignored"
)

// CommittedObject is handed to the Notifier after a block commits.
type CommittedObject struct {
	Object models.Object
	Action Action
}

// Notifier receives post-commit side effects. Failures are logged and do
// not affect the import result.
type Notifier interface {
	NotifyImported(ctx context.Context, objects []CommittedObject) error
}

// Authorizer decides whether subject may perform action on objects of
// typeName.
type Authorizer interface {
	Allowed(subject, typeName, action string) (bool, error)
}

// Permission actions checked by the pipeline.
const (
	PermImport = "import"
	PermExport = "export"
)

// Options control one import run.
type Options struct {
	// DryRun validates every row and reports what would happen without
	// writing anything.
	DryRun bool

	// AllOrNothing ignores a whole block when any of its rows has an error.
	AllOrNothing bool

	// Subject is the role checked against the Authorizer.
	Subject string
}

// FieldChange describes one column whose rendered value changed on update.
type FieldChange struct {
	Column string `json:"column"`
	Old    string `json:"old"`
	New    string `json:"new"`
	Diff   string `json:"diff,omitempty"`
}

// RowResult is the per-row outcome.
type RowResult struct {
	Line        int           `json:"line"`
	Slug        string        `json:"slug,omitempty"`
	Action      Action        `json:"action"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Changes     []FieldChange `json:"changes,omitempty"`
}

// BlockResult summarises one block of an import file.
type BlockResult struct {
	ObjectType    string       `json:"objectType"`
	Line          int          `json:"line"`
	Created       int          `json:"created"`
	Updated       int          `json:"updated"`
	Ignored       int          `json:"ignored"`
	Failed        int          `json:"failed"`
	FailedLines   []int        `json:"failedLines,omitempty"`
	BlockErrors   []Diagnostic `json:"blockErrors,omitempty"`
	BlockWarnings []Diagnostic `json:"blockWarnings,omitempty"`
	Rows          []RowResult  `json:"rows"`
}

// HasErrors reports whether the block or any of its rows has an error.
func (b *BlockResult) HasErrors() bool {
	if len(b.BlockErrors) > 0 {
		return true
	}
	for _, r := range b.Rows {
		if hasError(r.Diagnostics) {
			return true
		}
	}
	return false
}

// ImportResult is the outcome of importing one file.
type ImportResult struct {
	FileName string        `json:"fileName"`
	DryRun   bool          `json:"dryRun"`
	Blocks   []BlockResult `json:"blocks"`
	Errors   []Diagnostic  `json:"errors,omitempty"`
	Warnings []Diagnostic  `json:"warnings,omitempty"`
}

// Totals sums the per-block counters.
func (r *ImportResult) Totals() (created, updated, ignored, failed int) {
	for _, b := range r.Blocks {
		created += b.Created
		updated += b.Updated
		ignored += b.Ignored
		failed += b.Failed
	}
	return
}
