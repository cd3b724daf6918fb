// Package models holds the GRC workflow records that the import pipeline
// reads and writes. Records are plain structs; persistence lives in
// internal/database and parsing in internal/core.
package models

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Type names used by stores, registries and permission policies.
const (
	TypeWorkflow      = "Workflow"
	TypeTaskGroup     = "TaskGroup"
	TypeTaskGroupTask = "TaskGroupTask"
	TypeCycle         = "Cycle"
	TypeCycleTask     = "CycleTaskGroupObjectTask"
	TypeVendor        = "Vendor"
	TypePerson        = "Person"
)

// Object is implemented by every importable or exportable record.
type Object interface {
	TypeName() string
	GetID() int64
	SetID(id int64)
	GetSlug() string
	SetSlug(slug string)
	Clone() Object
}

// Titled records carry a title.
type Titled interface {
	GetTitle() string
	SetTitle(title string)
}

// Described records carry a free-text description.
type Described interface {
	GetDescription() string
	SetDescription(description string)
}

// Timeboxed records carry an optional start and end date.
// A zero time means the date is not set.
type Timeboxed interface {
	GetStartDate() time.Time
	SetStartDate(t time.Time)
	GetEndDate() time.Time
	SetEndDate(t time.Time)
}

// WithContact records have a single responsible person.
type WithContact interface {
	GetContact() *Person
	SetContact(p *Person)
}

// Base carries the fields shared by all records.
type Base struct {
	ID          int64
	Slug        string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *Base) GetID() int64 { return b.ID }
func (b *Base) SetID(id int64) { b.ID = id }
func (b *Base) GetSlug() string { return b.Slug }
func (b *Base) SetSlug(slug string) { b.Slug = slug }
func (b *Base) GetTitle() string { return b.Title }
func (b *Base) SetTitle(title string) { b.Title = title }
func (b *Base) GetDescription() string { return b.Description }
func (b *Base) SetDescription(d string) { b.Description = d }

// Dates is embedded by timeboxed records.
type Dates struct {
	StartDate time.Time
	EndDate   time.Time
}

func (d *Dates) GetStartDate() time.Time { return d.StartDate }
func (d *Dates) SetStartDate(t time.Time) { d.StartDate = t }
func (d *Dates) GetEndDate() time.Time { return d.EndDate }
func (d *Dates) SetEndDate(t time.Time) { d.EndDate = t }

// Assignee is embedded by records with a single responsible contact.
type Assignee struct {
	Contact *Person
}

func (a *Assignee) GetContact() *Person { return a.Contact }
func (a *Assignee) SetContact(p *Person) { a.Contact = p }

func (a Assignee) clone() Assignee {
	if a.Contact == nil {
		return a
	}
	p := *a.Contact
	return Assignee{Contact: &p}
}

// Person is a user of the system, identified by email.
type Person struct {
	ID    int64
	Email string
	Name  string
}

// SamePerson reports whether two people are the same user.
// Emails are compared case-insensitively since IDs are not assigned
// to people that only exist in an import file.
func SamePerson(a, b Person) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return strings.EqualFold(a.Email, b.Email)
}

// Emails returns the email addresses of people, in order.
func Emails(people []Person) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Email
	}
	return out
}

// WithoutPeople returns people minus anyone in exclude, preserving order.
func WithoutPeople(people, exclude []Person) []Person {
	out := make([]Person, 0, len(people))
	for _, p := range people {
		if !containsPerson(exclude, p) {
			out = append(out, p)
		}
	}
	return out
}

func containsPerson(people []Person, p Person) bool {
	for _, q := range people {
		if SamePerson(p, q) {
			return true
		}
	}
	return false
}
