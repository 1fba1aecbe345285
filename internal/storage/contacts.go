package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// CreatePerson 创建联系人；公司不存在时一并创建
// CreatePerson inserts a person, creating the named company if it does not exist.
func (s *SQLiteStore) CreatePerson(ctx context.Context, p Person) (PersonRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PersonRecord{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	rec := PersonRecord{
		ID:          newRecordID("per"),
		FirstName:   strings.TrimSpace(p.FirstName),
		LastName:    strings.TrimSpace(p.LastName),
		Emails:      p.Emails,
		Phones:      p.Phones,
		JobTitle:    p.JobTitle,
		City:        p.City,
		State:       p.State,
		LinkedIn:    p.LinkedIn,
		Description: p.Description,
		CreatedAt:   now,
	}
	if name := strings.TrimSpace(p.CompanyName); name != "" {
		id, canonical, err := findOrCreateCompany(ctx, tx, name, now)
		if err != nil {
			return PersonRecord{}, err
		}
		rec.CompanyID = id
		rec.CompanyName = canonical
	}

	emails, _ := json.Marshal(nonNil(rec.Emails))
	phones, _ := json.Marshal(nonNil(rec.Phones))
	var companyID any
	if rec.CompanyID != "" {
		companyID = rec.CompanyID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO people (id, first_name, last_name, emails, phones, company_id, job_title, city, state, linkedin, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FirstName, rec.LastName, string(emails), string(phones), companyID,
		rec.JobTitle, rec.City, rec.State, rec.LinkedIn, rec.Description, rec.CreatedAt)
	if err != nil {
		return PersonRecord{}, errors.Wrap(err, "insert person")
	}
	if err := tx.Commit(); err != nil {
		return PersonRecord{}, errors.Wrap(err, "commit person")
	}
	return rec, nil
}

func findOrCreateCompany(ctx context.Context, tx *sql.Tx, name, now string) (string, string, error) {
	var id, canonical string
	err := tx.QueryRowContext(ctx, `SELECT id, name FROM companies WHERE name = ?`, name).Scan(&id, &canonical)
	if err == nil {
		return id, canonical, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", "", errors.Wrap(err, "lookup company")
	}
	id = newRecordID("com")
	if _, err := tx.ExecContext(ctx, `INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)`, id, name, now); err != nil {
		return "", "", errors.Wrap(err, "insert company")
	}
	return id, name, nil
}

// ListPeople 按创建时间倒序列出联系人
// ListPeople returns the newest people first; limit <= 0 means no limit.
func (s *SQLiteStore) ListPeople(ctx context.Context, limit int) ([]PersonRecord, error) {
	query := `
		SELECT p.id, p.first_name, p.last_name, p.emails, p.phones, COALESCE(p.company_id, ''), COALESCE(c.name, ''),
		       p.job_title, p.city, p.state, p.linkedin, p.description, p.created_at
		FROM people p LEFT JOIN companies c ON c.id = p.company_id
		ORDER BY p.created_at DESC, p.id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list people")
	}
	defer rows.Close()

	var out []PersonRecord
	for rows.Next() {
		var (
			rec            PersonRecord
			emails, phones string
		)
		if err := rows.Scan(&rec.ID, &rec.FirstName, &rec.LastName, &emails, &phones, &rec.CompanyID, &rec.CompanyName,
			&rec.JobTitle, &rec.City, &rec.State, &rec.LinkedIn, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan person")
		}
		_ = json.Unmarshal([]byte(emails), &rec.Emails)
		_ = json.Unmarshal([]byte(phones), &rec.Phones)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountCompanies returns the number of stored companies.
func (s *SQLiteStore) CountCompanies(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count companies")
	}
	return n, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
