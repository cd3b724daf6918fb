package core

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/grc/internal/models"
)

// Generic column handlers shared by every object type.
func init() {
	RegisterHandlers(DefaultScope, map[string]HandlerFactory{
		"slug":        func(col Column) ColumnHandler { return slugHandler{HandlerBase{col}} },
		"title":       TextField(getTitle, setTitle),
		"description": TextField(getDescription, setDescription),
		"start_date":  DateField(getStartDate, setStartDate),
		"end_date":    DateField(getEndDate, setEndDate),
		"contact": func(col Column) ColumnHandler {
			return NewUserHandler(col, getContact, setContact)
		},
	})
}

// slugHandler renders the record code. Codes are resolved by the row
// converter before any handler runs.
type slugHandler struct{ HandlerBase }

func (slugHandler) Parse(context.Context, *RowConverter, string) (any, bool) { return nil, false }
func (slugHandler) Apply(*RowConverter, any) {}
func (slugHandler) Render(o models.Object) string { return o.GetSlug() }

type textHandler struct {
	HandlerBase
	get func(models.Object) string
	set func(models.Object, string)
}

// TextField builds handlers for free-text columns. An empty cell leaves the
// field unchanged.
func TextField(get func(models.Object) string, set func(models.Object, string)) HandlerFactory {
	return func(col Column) ColumnHandler {
		return textHandler{HandlerBase: HandlerBase{col}, get: get, set: set}
	}
}

func (h textHandler) Parse(_ context.Context, _ *RowConverter, raw string) (any, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, false
	}
	return v, true
}

func (h textHandler) Apply(rc *RowConverter, value any) { h.set(rc.Object(), value.(string)) }
func (h textHandler) Render(o models.Object) string { return h.get(o) }

type dateHandler struct {
	HandlerBase
	get func(models.Object) time.Time
	set func(models.Object, time.Time)
}

// DateField builds handlers for date columns. A clear marker empties the
// date; an unparseable date rejects the row.
func DateField(get func(models.Object) time.Time, set func(models.Object, time.Time)) HandlerFactory {
	return func(col Column) ColumnHandler {
		return dateHandler{HandlerBase: HandlerBase{col}, get: get, set: set}
	}
}

func (h dateHandler) Parse(_ context.Context, rc *RowConverter, raw string) (any, bool) {
	v := CleanCell(raw)
	switch {
	case v == "":
		return nil, false
	case IsClearMarker(v):
		return time.Time{}, true
	}
	t, ok := ParseDate(v)
	if !ok {
		h.Error(rc, CodeWrongValue)
		return nil, false
	}
	return t, true
}

func (h dateHandler) Apply(rc *RowConverter, value any) { h.set(rc.Object(), value.(time.Time)) }
func (h dateHandler) Render(o models.Object) string { return FormatDate(h.get(o)) }

type boolHandler struct {
	HandlerBase
	get func(models.Object) bool
	set func(models.Object, bool)
}

// BoolField builds checkbox handlers. Unrecognised values are warned about
// and leave the field unchanged.
func BoolField(get func(models.Object) bool, set func(models.Object, bool)) HandlerFactory {
	return func(col Column) ColumnHandler {
		return boolHandler{HandlerBase: HandlerBase{col}, get: get, set: set}
	}
}

func (h boolHandler) Parse(_ context.Context, rc *RowConverter, raw string) (any, bool) {
	v := CleanCell(raw)
	if v == "" {
		return nil, false
	}
	b, ok := ParseBool(v)
	if !ok {
		h.Warn(rc, CodeWrongValueWarn)
		return nil, false
	}
	return b, true
}

func (h boolHandler) Apply(rc *RowConverter, value any) { h.set(rc.Object(), value.(bool)) }
func (h boolHandler) Render(o models.Object) string { return FormatBool(h.get(o)) }

type urlHandler struct {
	HandlerBase
	get func(models.Object) string
	set func(models.Object, string)
}

// URLField builds handlers for link columns.
func URLField(get func(models.Object) string, set func(models.Object, string)) HandlerFactory {
	return func(col Column) ColumnHandler {
		return urlHandler{HandlerBase: HandlerBase{col}, get: get, set: set}
	}
}

func (h urlHandler) Parse(_ context.Context, rc *RowConverter, raw string) (any, bool) {
	v := CleanCell(raw)
	switch {
	case v == "":
		return nil, false
	case IsClearMarker(v):
		return "", true
	case !IsURL(v):
		h.Error(rc, CodeWrongValue)
		return nil, false
	}
	return v, true
}

func (h urlHandler) Apply(rc *RowConverter, value any) { h.set(rc.Object(), value.(string)) }
func (h urlHandler) Render(o models.Object) string { return h.get(o) }

type exportOnlyHandler struct {
	HandlerBase
	render func(models.Object) string
}

// ExportOnlyField builds handlers for columns that are written on export and
// never imported. A cell that differs from the stored value is warned about.
func ExportOnlyField(render func(models.Object) string) HandlerFactory {
	return func(col Column) ColumnHandler {
		col.ExportOnly = true
		return exportOnlyHandler{HandlerBase: HandlerBase{col}, render: render}
	}
}

func (h exportOnlyHandler) Parse(_ context.Context, rc *RowConverter, raw string) (any, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || (!rc.IsNew() && v == h.render(rc.Object())) {
		return nil, false
	}
	h.Warn(rc, CodeExportOnlyColumn)
	return nil, false
}

func (exportOnlyHandler) Apply(*RowConverter, any) {}
func (h exportOnlyHandler) Render(o models.Object) string { return h.render(o) }

// ParentHandler resolves a reference to the record's parent by code.
// The parent is fixed once the record exists.
type ParentHandler struct {
	HandlerBase
	ParentType string
	Get        func(models.Object) string
	Set        func(child, parent models.Object)
}

// ParentField builds a ParentHandler factory for parents of parentType.
func ParentField(parentType string, get func(models.Object) string, set func(child, parent models.Object)) HandlerFactory {
	return func(col Column) ColumnHandler {
		return &ParentHandler{HandlerBase: HandlerBase{col}, ParentType: parentType, Get: get, Set: set}
	}
}

func (h *ParentHandler) Parse(ctx context.Context, rc *RowConverter, raw string) (any, bool) {
	slug := CleanCell(raw)
	if slug == "" {
		return nil, false
	}
	if !rc.IsNew() {
		if cur := h.Get(rc.Object()); cur != "" && !strings.EqualFold(cur, slug) {
			h.Warn(rc, CodeUnmodifiableColumn)
			return nil, false
		}
	}
	parent, err := rc.Lookup(ctx, h.ParentType, slug)
	if err != nil {
		rc.Fail(err)
		return nil, false
	}
	if parent == nil {
		h.Error(rc, CodeUnknownObject, h.Col.DisplayName, slug)
		return nil, false
	}
	return parent, true
}

func (h *ParentHandler) Apply(rc *RowConverter, value any) {
	h.Set(rc.Object(), value.(models.Object))
}

func (h *ParentHandler) Render(o models.Object) string { return h.Get(o) }

// UserHandler resolves a single person by email.
// Unknown people are warned about; on a new record a mandatory user column
// that resolves to nobody rejects the row.
type UserHandler struct {
	HandlerBase
	Get func(models.Object) *models.Person
	Set func(models.Object, *models.Person)
}

// NewUserHandler returns a handler for a single-person column.
func NewUserHandler(col Column, get func(models.Object) *models.Person, set func(models.Object, *models.Person)) *UserHandler {
	return &UserHandler{HandlerBase: HandlerBase{col}, Get: get, Set: set}
}

func (h *UserHandler) Parse(ctx context.Context, rc *RowConverter, raw string) (any, bool) {
	email := CleanCell(raw)
	if email == "" {
		return nil, false
	}
	people := h.ParseUsers(ctx, rc, email)
	if len(people) == 0 {
		if h.Col.Mandatory && rc.IsNew() {
			h.Error(rc, CodeMissingValue)
		}
		return nil, false
	}
	return people[0], true
}

func (h *UserHandler) Apply(rc *RowConverter, value any) {
	p := value.(models.Person)
	h.Set(rc.Object(), &p)
}

func (h *UserHandler) Render(o models.Object) string {
	if p := h.Get(o); p != nil {
		return p.Email
	}
	return ""
}

// ParseUsers resolves every email in raw to a person. Invalid or unknown
// emails produce a warning and are dropped. Duplicates are removed and the
// order of first appearance is kept.
func (h HandlerBase) ParseUsers(ctx context.Context, rc *RowConverter, raw string) []models.Person {
	var emails []string
	for _, e := range SplitList(raw) {
		if !IsEmail(e) {
			h.Warn(rc, CodeUnknownUserWarn, e)
			continue
		}
		emails = append(emails, e)
	}
	if len(emails) == 0 {
		return nil
	}

	found, err := rc.People(ctx, emails)
	if err != nil {
		rc.Fail(err)
		return nil
	}

	var out []models.Person
	for _, e := range emails {
		p, ok := found[strings.ToLower(e)]
		if !ok {
			h.Warn(rc, CodeUnknownUserWarn, e)
			continue
		}
		if !containsPerson(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// RenderPeople renders a people list one email per line.
func RenderPeople(people []models.Person) string {
	return strings.Join(models.Emails(people), "\n")
}

func containsPerson(people []models.Person, p models.Person) bool {
	for _, q := range people {
		if models.SamePerson(p, q) {
			return true
		}
	}
	return false
}

func getTitle(o models.Object) string {
	if t, ok := o.(models.Titled); ok {
		return t.GetTitle()
	}
	return ""
}

func setTitle(o models.Object, v string) {
	if t, ok := o.(models.Titled); ok {
		t.SetTitle(v)
	}
}

func getDescription(o models.Object) string {
	if d, ok := o.(models.Described); ok {
		return d.GetDescription()
	}
	return ""
}

func setDescription(o models.Object, v string) {
	if d, ok := o.(models.Described); ok {
		d.SetDescription(v)
	}
}

func getStartDate(o models.Object) time.Time {
	if t, ok := o.(models.Timeboxed); ok {
		return t.GetStartDate()
	}
	return time.Time{}
}

func setStartDate(o models.Object, v time.Time) {
	if t, ok := o.(models.Timeboxed); ok {
		t.SetStartDate(v)
	}
}

func getEndDate(o models.Object) time.Time {
	if t, ok := o.(models.Timeboxed); ok {
		return t.GetEndDate()
	}
	return time.Time{}
}

func setEndDate(o models.Object, v time.Time) {
	if t, ok := o.(models.Timeboxed); ok {
		t.SetEndDate(v)
	}
}

func getContact(o models.Object) *models.Person {
	if c, ok := o.(models.WithContact); ok {
		return c.GetContact()
	}
	return nil
}

func setContact(o models.Object, p *models.Person) {
	if c, ok := o.(models.WithContact); ok {
		c.SetContact(p)
	}
}

// ContactOf returns the contact of o, if o has one.
func ContactOf(o models.Object) *models.Person { return getContact(o) }
