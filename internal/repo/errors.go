package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Constraint names shared by both dialects. Postgres reports them verbatim;
// SQLite reports column lists, which sqliteConstraints maps back.
const (
	ConstraintCandidateID        = "candidates_pkey"
	ConstraintCandidateEmail     = "candidates_email_address"
	ConstraintCandidatePhone     = "candidates_phone_number"
	ConstraintConversationID     = "conversations_pkey"
	ConstraintCandidateJob       = "conversations_candidate_id_job_id"
	ConstraintActiveConversation = "conversations_one_active_per_candidate"
)

var sqliteConstraints = map[string]string{
	"candidates.id":                                    ConstraintCandidateID,
	"candidates.email_address":                         ConstraintCandidateEmail,
	"candidates.phone_number":                          ConstraintCandidatePhone,
	"conversations.id":                                 ConstraintConversationID,
	"conversations.candidate_id, conversations.job_id": ConstraintCandidateJob,
	"conversations.candidate_id":                       ConstraintActiveConversation,
}

var ErrNotFound = errors.New("not found")

// ErrStatusChanged means a conditional status update found the row in a different state.
var ErrStatusChanged = errors.New("status changed concurrently")

// ConstraintError is a uniqueness violation reported by the store.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %v", e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a violation of the named constraint.
// An empty name matches any uniqueness violation.
func IsConstraint(err error, name string) bool {
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		return false
	}
	return name == "" || ce.Constraint == name
}

// classify converts driver uniqueness errors into *ConstraintError and
// returns every other error unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return &ConstraintError{Constraint: pqErr.Constraint, Err: err}
		}
		return err
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// Extended codes carry the primary code in the low byte.
		if liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE constraint failed") {
			return &ConstraintError{Constraint: sqliteConstraintName(liteErr.Error()), Err: err}
		}
		return err
	}
	return err
}

func sqliteConstraintName(msg string) string {
	const marker = "UNIQUE constraint failed: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	cols := msg[idx+len(marker):]
	if end := strings.Index(cols, " ("); end >= 0 {
		cols = cols[:end]
	}
	cols = strings.TrimSpace(cols)
	if name, ok := sqliteConstraints[cols]; ok {
		return name
	}
	return cols
}
