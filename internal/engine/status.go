package engine

import (
	"context"
	"fmt"

	"intake/internal/domain"
)

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	From domain.ConversationStatus
	To   domain.ConversationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

var transitions = map[domain.ConversationStatus][]domain.ConversationStatus{
	domain.StatusCreated: {domain.StatusOngoing, domain.StatusCompleted},
	domain.StatusOngoing: {domain.StatusCompleted},
}

// CanTransition reports whether from -> to is a forward lifecycle step.
// COMPLETED is terminal.
func CanTransition(from, to domain.ConversationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetConversationStatus moves a conversation forward in its lifecycle.
// Setting the current status again is a no-op.
func (e Engine) SetConversationStatus(ctx context.Context, id string, next domain.ConversationStatus) (domain.Conversation, error) {
	if !next.Valid() {
		return domain.Conversation{}, fmt.Errorf("invalid status %q", next)
	}
	conv, err := e.Store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv.Status == next {
		return conv, nil
	}
	if !CanTransition(conv.Status, next) {
		return domain.Conversation{}, &TransitionError{From: conv.Status, To: next}
	}
	updated, err := e.Store.UpdateConversationStatus(ctx, id, conv.Status, next)
	if err != nil {
		return domain.Conversation{}, err
	}
	e.Log.Info().
		Str("conversation_id", id).
		Str("from", string(conv.Status)).
		Str("to", string(next)).
		Msg("conversation status changed")
	return updated, nil
}
