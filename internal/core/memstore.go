package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/grc/internal/models"
)

// MemoryStore is a Store kept in memory. It backs tests and CLI dry runs and
// follows the database store's semantics: records are copied in and out, IDs
// are assigned on first save, and each staged row commits or fails on its own.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	objects map[objectKey]models.Object
	people  map[string]models.Person

	// FailRow, when set, is called for each staged row during CommitBlock.
	// A non-nil error fails that row as a rolled back savepoint would.
	FailRow func(row StagedRow) error

	// FailCommit, when set, fails every CommitBlock as a failed transaction.
	FailCommit error

	commits int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[objectKey]models.Object),
		people:  make(map[string]models.Person),
	}
}

// AddPerson registers a person and returns it with its ID set.
func (s *MemoryStore) AddPerson(p models.Person) models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.people[strings.ToLower(p.Email)]; ok {
		return existing
	}
	s.nextID++
	p.ID = s.nextID
	s.people[strings.ToLower(p.Email)] = p
	return p
}

// Put stores a copy of o, assigning an ID if it has none.
func (s *MemoryStore) Put(o models.Object) models.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(o)
	return o
}

// Save stores a single record.
func (s *MemoryStore) Save(_ context.Context, o models.Object) error {
	s.Put(o)
	return nil
}

func (s *MemoryStore) put(o models.Object) {
	if o.GetID() == 0 {
		s.nextID++
		o.SetID(s.nextID)
	}
	s.objects[keyOf(o)] = o.Clone()
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, typeName, slug string) (models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[objectKey{typeName: typeName, slug: strings.ToLower(slug)}]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", typeName, slug, models.ErrNotFound)
	}
	return o.Clone(), nil
}

// FindPeople implements Store.
func (s *MemoryStore) FindPeople(_ context.Context, emails []string) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Person
	for _, e := range emails {
		if p, ok := s.people[strings.ToLower(e)]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// People returns every registered person ordered by email.
func (s *MemoryStore) People() []models.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Person, 0, len(s.people))
	for _, p := range s.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, typeName string) ([]models.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Object
	for k, o := range s.objects {
		if k.typeName == typeName {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetSlug() < out[j].GetSlug() })
	return out, nil
}

// CommitBlock implements Store.
func (s *MemoryStore) CommitBlock(_ context.Context, rows []StagedRow) ([]error, error) {
	if s.FailCommit != nil {
		return nil, s.FailCommit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commits++
	errs := make([]error, len(rows))
	for i, row := range rows {
		if s.FailRow != nil {
			if err := s.FailRow(row); err != nil {
				errs[i] = err
				continue
			}
		}
		workflows, err := s.joinTargets(row.Joins)
		if err != nil {
			errs[i] = err
			continue
		}
		for _, o := range row.Objects {
			s.put(o)
		}
		for j, m := range row.Joins {
			workflows[j].AddMember(m.Person)
		}
	}
	return errs, nil
}

// joinTargets resolves the stored workflows of joins before anything of the
// row is written, so a missing workflow fails the whole row.
func (s *MemoryStore) joinTargets(joins []Membership) ([]*models.Workflow, error) {
	out := make([]*models.Workflow, len(joins))
	for i, m := range joins {
		o, ok := s.objects[objectKey{models.TypeWorkflow, strings.ToLower(m.Workflow)}]
		if !ok {
			return nil, fmt.Errorf("join workflow %q: %w", m.Workflow, models.ErrNotFound)
		}
		out[i] = o.(*models.Workflow)
	}
	return out, nil
}

// Commits returns how many times CommitBlock ran a transaction.
func (s *MemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Len returns the number of stored records of typeName.
func (s *MemoryStore) Len(typeName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.objects {
		if k.typeName == typeName {
			n++
		}
	}
	return n
}
