package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/grc/internal/models"
)

const getPeopleByEmails = `
SELECT id, email, name FROM people
WHERE lower(email) = ANY($1::text[])
ORDER BY email`

// GetPeopleByEmails returns the people with the given emails, compared
// case-insensitively. Unknown emails are skipped.
func (q *Queries) GetPeopleByEmails(ctx context.Context, emails []string) ([]models.Person, error) {
	lower := make([]string, len(emails))
	for i, e := range emails {
		lower[i] = strings.ToLower(strings.TrimSpace(e))
	}
	rows, err := q.db.Query(ctx, getPeopleByEmails, lower)
	if err != nil {
		return nil, fmt.Errorf("get people: %w", err)
	}
	return pgx.CollectRows(rows, scanPerson)
}

const listPeople = `SELECT id, email, name FROM people ORDER BY email`

// ListPeople returns everyone ordered by email.
func (q *Queries) ListPeople(ctx context.Context) ([]models.Person, error) {
	rows, err := q.db.Query(ctx, listPeople)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return pgx.CollectRows(rows, scanPerson)
}

const upsertPerson = `
INSERT INTO people (email, name) VALUES ($1, $2)
ON CONFLICT ((lower(email))) DO UPDATE
SET name = CASE WHEN EXCLUDED.name = '' THEN people.name ELSE EXCLUDED.name END
RETURNING id`

// UpsertPerson creates or renames a person and returns its ID.
func (q *Queries) UpsertPerson(ctx context.Context, p models.Person) (int64, error) {
	var id int64
	if err := q.db.QueryRow(ctx, upsertPerson, strings.TrimSpace(p.Email), p.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert person %s: %w", p.Email, err)
	}
	return id, nil
}

func scanPerson(row pgx.CollectableRow) (models.Person, error) {
	var p models.Person
	err := row.Scan(&p.ID, &p.Email, &p.Name)
	return p, err
}

// contactFrom builds the optional contact of a LEFT JOIN on people.
func contactFrom(id pgtype.Int8, email, name pgtype.Text) *models.Person {
	if !id.Valid {
		return nil
	}
	return &models.Person{ID: id.Int64, Email: email.String, Name: name.String}
}

func contactID(o models.WithContact) pgtype.Int8 {
	if c := o.GetContact(); c != nil {
		return toInt8(c.ID)
	}
	return pgtype.Int8{}
}
