package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/grc/internal/models"
)

type objectKey struct {
	typeName string
	slug     string
}

func keyOf(o models.Object) objectKey {
	return objectKey{typeName: o.TypeName(), slug: strings.ToLower(o.GetSlug())}
}

// session caches records and people for the duration of one import so rows
// see what earlier rows and blocks staged. A nil entry records a known miss.
type session struct {
	store   Store
	objects map[objectKey]models.Object
	people  map[string]*models.Person
}

func newSession(store Store) *session {
	return &session{
		store:   store,
		objects: make(map[objectKey]models.Object),
		people:  make(map[string]*models.Person),
	}
}

// find returns the shared cached instance of a record, loading it from the
// store on first use. Returns nil, nil when the record does not exist.
func (s *session) find(ctx context.Context, typeName, slug string) (models.Object, error) {
	k := objectKey{typeName: typeName, slug: strings.ToLower(slug)}
	if o, ok := s.objects[k]; ok {
		return o, nil
	}
	o, err := s.store.Find(ctx, typeName, slug)
	if errors.Is(err, models.ErrNotFound) {
		s.objects[k] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", typeName, slug, err)
	}
	s.objects[k] = o
	return o, nil
}

// people resolves emails, keyed by lowercased email. Unknown emails are
// absent from the result.
func (s *session) findPeople(ctx context.Context, emails []string) (map[string]models.Person, error) {
	var missing []string
	for _, e := range emails {
		if _, ok := s.people[strings.ToLower(e)]; !ok {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		found, err := s.store.FindPeople(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("find people: %w", err)
		}
		for _, e := range missing {
			s.people[strings.ToLower(e)] = nil
		}
		for i := range found {
			p := found[i]
			s.people[strings.ToLower(p.Email)] = &p
		}
	}

	out := make(map[string]models.Person, len(emails))
	for _, e := range emails {
		if p := s.people[strings.ToLower(e)]; p != nil {
			out[strings.ToLower(e)] = *p
		}
	}
	return out, nil
}

func (s *session) put(o models.Object) {
	s.objects[keyOf(o)] = o
}

// stage publishes an accepted row's records to the cache.
func (s *session) stage(rc *RowConverter) {
	for _, o := range rc.Staged() {
		s.put(o)
	}
}

// revert undoes stage for a row whose records were not persisted.
func (s *session) revert(rc *RowConverter) {
	for _, snap := range rc.snapshots {
		if snap.prior == nil {
			delete(s.objects, snap.key)
			continue
		}
		s.objects[snap.key] = snap.prior
	}
}

// forget drops the related records a failed row changed. Later rows may have
// joined the same workflow, so the next read reloads what the store holds.
func (s *session) forget(rc *RowConverter) {
	for _, o := range rc.touched {
		delete(s.objects, keyOf(o))
	}
}
