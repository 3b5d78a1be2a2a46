package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake/internal/db"
	"intake/internal/domain"
	"intake/internal/events"
)

// Repo is the SQL record store for candidates and conversations.
type Repo struct {
	DB      *sql.DB
	Dialect string
	Events  events.Writer
	Now     func() time.Time
}

func New(conn *sql.DB, dialect string) Repo {
	return Repo{
		DB:      conn,
		Dialect: dialect,
		Events:  events.Writer{Dialect: dialect},
		Now:     time.Now,
	}
}

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

func (r Repo) now() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().UTC().Format(domain.TimeLayout)
}

func (r Repo) events() events.Writer {
	w := r.Events
	w.Dialect = r.Dialect
	if w.Now == nil {
		w.Now = r.Now
	}
	return w
}

const candidateColumns = `id,email_address,phone_number,first_name,last_name,created_at`

func scanCandidate(row interface{ Scan(...any) error }) (domain.Candidate, error) {
	var c domain.Candidate
	err := row.Scan(&c.ID, &c.EmailAddress, &c.PhoneNumber, &c.FirstName, &c.LastName, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// FindCandidateByEmailOrPhone returns the candidate matching either identity
// field. An email match wins over a phone match belonging to someone else.
func (r Repo) FindCandidateByEmailOrPhone(ctx context.Context, email, phone string) (domain.Candidate, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+candidateColumns+` FROM candidates
WHERE email_address=? OR phone_number=?
ORDER BY CASE WHEN email_address=? THEN 0 ELSE 1 END, created_at, id
LIMIT 1`), email, phone, email)
	return scanCandidate(row)
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	return scanCandidate(r.DB.QueryRowContext(ctx, r.q(`SELECT `+candidateColumns+` FROM candidates WHERE id=?`), id))
}

// CreateCandidate inserts c with its caller-supplied id. A duplicate id, email
// or phone surfaces as *ConstraintError.
func (r Repo) CreateCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	if strings.TrimSpace(c.ID) == "" {
		return domain.Candidate{}, fmt.Errorf("candidate id required")
	}
	if c.CreatedAt == "" {
		c.CreatedAt = r.now()
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO candidates(`+candidateColumns+`) VALUES (?,?,?,?,?,?)`),
		c.ID, c.EmailAddress, c.PhoneNumber, c.FirstName, c.LastName, c.CreatedAt); err != nil {
		return domain.Candidate{}, classify(err)
	}
	if err := r.events().Append(ctx, tx, events.CandidateCreated, "candidate", c.ID, events.EventPayload{
		"email_address": c.EmailAddress,
		"phone_number":  c.PhoneNumber,
	}); err != nil {
		return domain.Candidate{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Candidate{}, classify(err)
	}
	return c, nil
}

const conversationColumns = `c.id,c.candidate_id,c.job_id,c.status,c.created_at,c.updated_at`

func scanConversation(row interface{ Scan(...any) error }) (domain.Conversation, error) {
	var c domain.Conversation
	var status string
	err := row.Scan(&c.ID, &c.CandidateID, &c.JobID, &status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Status = domain.ConversationStatus(status)
	return c, err
}

func scanConversationWithCandidate(row interface{ Scan(...any) error }) (domain.Conversation, error) {
	var c domain.Conversation
	var cand domain.Candidate
	var status string
	err := row.Scan(&c.ID, &c.CandidateID, &c.JobID, &status, &c.CreatedAt, &c.UpdatedAt,
		&cand.ID, &cand.EmailAddress, &cand.PhoneNumber, &cand.FirstName, &cand.LastName, &cand.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.ConversationStatus(status)
	c.Candidate = &cand
	return c, nil
}

func (r Repo) ListConversationsByCandidate(ctx context.Context, candidateID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+conversationColumns+` FROM conversations c WHERE c.candidate_id=? ORDER BY c.created_at, c.id`), candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) FindConversationByCandidateAndJob(ctx context.Context, candidateID, jobID string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx, r.q(`SELECT `+conversationColumns+` FROM conversations c WHERE c.candidate_id=? AND c.job_id=?`), candidateID, jobID))
}

// CreateConversation inserts a conversation with a fresh id. A second row for
// the same (candidate, job) pair, or a second non-terminal row for the same
// candidate, is rejected by the schema and surfaces as *ConstraintError.
func (r Repo) CreateConversation(ctx context.Context, candidateID, jobID string, status domain.ConversationStatus) (domain.Conversation, error) {
	now := r.now()
	c := domain.Conversation{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		JobID:       jobID,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO conversations(id,candidate_id,job_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`),
		c.ID, c.CandidateID, c.JobID, string(c.Status), c.CreatedAt, c.UpdatedAt); err != nil {
		return domain.Conversation{}, classify(err)
	}
	if err := r.events().Append(ctx, tx, events.ConversationCreated, "conversation", c.ID, events.EventPayload{
		"candidate_id": c.CandidateID,
		"job_id":       c.JobID,
		"status":       string(c.Status),
	}); err != nil {
		return domain.Conversation{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, classify(err)
	}
	return c, nil
}

func (r Repo) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+conversationColumns+`,`+prefixed("k", candidateColumns)+`
FROM conversations c JOIN candidates k ON k.id=c.candidate_id
WHERE c.id=?`), id)
	return scanConversationWithCandidate(row)
}

// ConversationFilter narrows ListConversations. Cursor fields page backwards
// from the given (created_at, id) position.
type ConversationFilter struct {
	Status          domain.ConversationStatus
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListConversations returns conversations with their candidates, newest first.
func (r Repo) ListConversations(ctx context.Context, f ConversationFilter) ([]domain.Conversation, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "c.status=?")
		args = append(args, string(f.Status))
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(c.created_at < ? OR (c.created_at = ? AND c.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + conversationColumns + `,` + prefixed("k", candidateColumns) + `
FROM conversations c JOIN candidates k ON k.id=c.candidate_id
` + where + ` ORDER BY c.created_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversationWithCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateConversationStatus moves a conversation from expected to next only if
// it is still in expected; otherwise it returns ErrStatusChanged.
func (r Repo) UpdateConversationStatus(ctx context.Context, id string, expected, next domain.ConversationStatus) (domain.Conversation, error) {
	now := r.now()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, r.q(`UPDATE conversations SET status=?, updated_at=? WHERE id=? AND status=?`),
		string(next), now, id, string(expected))
	if err != nil {
		return domain.Conversation{}, classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, r.q(`SELECT 1 FROM conversations WHERE id=?`), id).Scan(&exists)
		if err == sql.ErrNoRows {
			return domain.Conversation{}, ErrNotFound
		}
		if err != nil {
			return domain.Conversation{}, err
		}
		return domain.Conversation{}, ErrStatusChanged
	}
	if err := r.events().Append(ctx, tx, events.ConversationStatusChanged, "conversation", id, events.EventPayload{
		"from": string(expected),
		"to":   string(next),
	}); err != nil {
		return domain.Conversation{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ",")
}
