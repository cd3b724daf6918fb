package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/grc/internal/models"
)

// RowConverter turns one data row into a staged record.
//
// Handlers run in dependency order. Their diagnostics collect on the
// converter; any error leaves the row ignored and nothing it parsed is
// applied. Records are cloned on load so an ignored row never changes what
// other rows see.
type RowConverter struct {
	sess *session
	blk  *block
	line int
	raw  map[string]string

	obj      models.Object
	prior    models.Object // clone taken before any change; nil for new rows
	original models.Object // shared cache instance the row started from
	isNew    bool

	values  map[string]any
	diags   []Diagnostic
	related map[objectKey]models.Object
	shared  map[objectKey]models.Object // cache instance each related copy came from
	touched []models.Object
	joins   []Membership

	snapshots []snapshot
	ignored   bool
	err       error
}

type snapshot struct {
	key   objectKey
	prior models.Object
}

func newRowConverter(sess *session, blk *block, line int, raw map[string]string) *RowConverter {
	return &RowConverter{
		sess:    sess,
		blk:     blk,
		line:    line,
		raw:     raw,
		values:  make(map[string]any),
		related: make(map[objectKey]models.Object),
		shared:  make(map[objectKey]models.Object),
	}
}

// Line is the 1-based line of the row in the file.
func (rc *RowConverter) Line() int { return rc.line }

// IsNew reports whether the row creates a record.
func (rc *RowConverter) IsNew() bool { return rc.isNew }

// Object is the record the row writes to.
func (rc *RowConverter) Object() models.Object { return rc.obj }

// Prior is the record as it was before the row; nil for new rows.
func (rc *RowConverter) Prior() models.Object { return rc.prior }

// Definition is the object definition of the row's block.
func (rc *RowConverter) Definition() ObjectDefinition { return rc.blk.def }

// Add records a diagnostic for the row.
func (rc *RowConverter) Add(d Diagnostic) { rc.diags = append(rc.diags, d) }

// Diagnostics returns the row's diagnostics in the order they were added.
func (rc *RowConverter) Diagnostics() []Diagnostic { return rc.diags }

// HasErrors reports whether the row will be ignored.
func (rc *RowConverter) HasErrors() bool { return rc.ignored || hasError(rc.diags) }

// Fail aborts the import with a technical error such as a lost database
// connection. Only the first error is kept.
func (rc *RowConverter) Fail(err error) {
	if rc.err == nil {
		rc.err = err
	}
}

// HasColumn reports whether the block header contains the column.
func (rc *RowConverter) HasColumn(key string) bool {
	_, ok := rc.raw[key]
	return ok
}

// Raw returns the cell of column key.
func (rc *RowConverter) Raw(key string) string { return rc.raw[key] }

// Value returns the value parsed for column key, if its handler accepted one.
func (rc *RowConverter) Value(key string) (any, bool) {
	v, ok := rc.values[key]
	return v, ok
}

// Lookup returns a record for reading. Nil without error means it does not
// exist. Callers must not modify the result; use Related for that.
func (rc *RowConverter) Lookup(ctx context.Context, typeName, slug string) (models.Object, error) {
	if o, ok := rc.related[objectKey{typeName, strings.ToLower(slug)}]; ok {
		return o, nil
	}
	return rc.sess.find(ctx, typeName, slug)
}

// Related returns a row-local copy of another record that the row may
// modify. Changes reach the store only through Join.
func (rc *RowConverter) Related(ctx context.Context, typeName, slug string) (models.Object, error) {
	k := objectKey{typeName, strings.ToLower(slug)}
	if o, ok := rc.related[k]; ok {
		return o, nil
	}
	shared, err := rc.sess.find(ctx, typeName, slug)
	if err != nil || shared == nil {
		return nil, err
	}
	o := shared.Clone()
	rc.related[k] = o
	rc.shared[k] = shared
	return o, nil
}

// Join adds p to a workflow loaded with Related. Later rows see the new
// member; the store only receives the membership, saved in the same
// savepoint as the row's own record.
func (rc *RowConverter) Join(wf *models.Workflow, p models.Person) {
	wf.AddMember(p)
	rc.joins = append(rc.joins, Membership{Workflow: wf.GetSlug(), Person: p})
	for _, t := range rc.touched {
		if t == models.Object(wf) {
			return
		}
	}
	rc.touched = append(rc.touched, wf)
}

// People resolves emails through the import's people cache.
func (rc *RowConverter) People(ctx context.Context, emails []string) (map[string]models.Person, error) {
	return rc.sess.findPeople(ctx, emails)
}

// Staged returns the row's own record followed by the related records it
// changed, as later rows of the import should see them.
func (rc *RowConverter) Staged() []models.Object {
	return append([]models.Object{rc.obj}, rc.touched...)
}

func (rc *RowConverter) stagedRow() StagedRow {
	return StagedRow{Line: rc.line, Objects: []models.Object{rc.obj}, Joins: rc.joins}
}

// EffectiveDate returns the date parsed for key in this row, or the
// record's current value when the column did not change it.
func (rc *RowConverter) EffectiveDate(key string, current time.Time) time.Time {
	if v, ok := rc.values[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return current
}

// convert runs the handlers and, when the row has no errors, applies their
// values. A returned error is technical and aborts the import.
func (rc *RowConverter) convert(ctx context.Context) error {
	if err := rc.resolve(ctx); err != nil || rc.ignored {
		return err
	}

	for _, h := range rc.blk.handlers {
		col := h.Column()
		raw := rc.raw[col.Key]
		if strings.TrimSpace(raw) == "" && col.Mandatory && !col.ExportOnly && rc.isNew {
			rc.Add(Errorf(CodeMissingValue, rc.line, col.Key, col.DisplayName))
			continue
		}
		v, ok := h.Parse(ctx, rc, raw)
		if rc.err != nil {
			return rc.err
		}
		if ok {
			rc.values[col.Key] = v
		}
	}

	if validate := rc.blk.def.Validate; validate != nil {
		validate(rc)
		if rc.err != nil {
			return rc.err
		}
	}

	if rc.HasErrors() {
		rc.ignored = true
		return nil
	}

	for _, h := range rc.blk.handlers {
		if v, ok := rc.values[h.Column().Key]; ok {
			h.Apply(rc, v)
		}
	}

	rc.snapshots = append(rc.snapshots, snapshot{key: keyOf(rc.obj), prior: rc.original})
	for _, o := range rc.touched {
		k := keyOf(o)
		shared, ok := rc.shared[k]
		if !ok {
			var err error
			if shared, err = rc.sess.find(ctx, k.typeName, o.GetSlug()); err != nil {
				rc.Fail(err)
				return err
			}
		}
		rc.snapshots = append(rc.snapshots, snapshot{key: k, prior: shared})
	}
	return nil
}

// resolve loads the existing record by code or starts a new one.
func (rc *RowConverter) resolve(ctx context.Context) error {
	def := rc.blk.def
	slug := CleanCell(rc.raw["slug"])

	if slug != "" {
		k := strings.ToLower(slug)
		if first, dup := rc.blk.seen[k]; dup {
			name := "Code"
			if col, ok := def.Column("slug"); ok {
				name = col.DisplayName
			}
			rc.Add(Errorf(CodeDuplicateValue, rc.line, "slug", name, slug, first))
			rc.ignored = true
			return nil
		}
		rc.blk.seen[k] = rc.line

		cached, err := rc.sess.find(ctx, def.TypeName, slug)
		if err != nil {
			return err
		}
		if cached != nil {
			rc.original = cached
			rc.obj = cached.Clone()
			rc.prior = cached.Clone()
			return nil
		}
	}

	rc.isNew = true
	rc.obj = def.New()
	if slug == "" {
		slug = GenerateSlug(def.SlugPrefix)
	}
	rc.obj.SetSlug(slug)
	return nil
}

// changes compares the rendered columns before and after the row.
func (rc *RowConverter) changes() []FieldChange {
	if rc.isNew || rc.prior == nil {
		return nil
	}
	var out []FieldChange
	for _, h := range rc.blk.handlers {
		col := h.Column()
		if col.ExportOnly {
			continue
		}
		before, after := h.Render(rc.prior), h.Render(rc.obj)
		if before == after {
			continue
		}
		out = append(out, FieldChange{
			Column: col.DisplayName,
			Old:    before,
			New:    after,
			Diff:   InlineDiff(before, after),
		})
	}
	return out
}

func (rc *RowConverter) result() RowResult {
	r := RowResult{
		Line:        rc.line,
		Diagnostics: rc.diags,
	}
	if rc.obj != nil {
		r.Slug = rc.obj.GetSlug()
	} else {
		r.Slug = CleanCell(rc.raw["slug"])
	}
	switch {
	case rc.ignored:
		r.Action = ActionIgnored
	case rc.isNew:
		r.Action = ActionCreated
	default:
		r.Action = ActionUpdated
		r.Changes = rc.changes()
	}
	return r
}

// GenerateSlug returns a new record code: the prefix, a dash and eight
// random uppercase hex digits.
func GenerateSlug(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	if prefix == "" {
		return id
	}
	return strings.ToUpper(prefix) + "-" + id
}
