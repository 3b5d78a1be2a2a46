package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intake/internal/db"
	"intake/internal/domain"
)

const (
	CandidateCreated          = "candidate.created"
	ConversationCreated       = "conversation.created"
	ConversationStatusChanged = "conversation.status_changed"
)

type Writer struct {
	Dialect string
	Now     func() time.Time
}

type EventPayload map[string]any

// Append writes an audit row inside tx so it commits or rolls back with the change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(domain.TimeLayout)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(id,ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`),
		uuid.NewString(), ts, evtType, entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
