package engine

import (
	"context"

	"github.com/rs/zerolog"

	"intake/internal/domain"
	"intake/internal/repo"
)

// Store is the record store boundary the admission workflow depends on.
// repo.Repo is the SQL implementation; it reports missing rows as
// repo.ErrNotFound and uniqueness violations as *repo.ConstraintError.
type Store interface {
	FindCandidateByEmailOrPhone(ctx context.Context, email, phone string) (domain.Candidate, error)
	CreateCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error)
	ListConversationsByCandidate(ctx context.Context, candidateID string) ([]domain.Conversation, error)
	FindConversationByCandidateAndJob(ctx context.Context, candidateID, jobID string) (domain.Conversation, error)
	CreateConversation(ctx context.Context, candidateID, jobID string, status domain.ConversationStatus) (domain.Conversation, error)

	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	ListConversations(ctx context.Context, f repo.ConversationFilter) ([]domain.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, expected, next domain.ConversationStatus) (domain.Conversation, error)
	ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error)
}

var _ Store = repo.Repo{}

// Engine runs conversation admission against a Store. It holds no locks;
// concurrent admissions are reconciled by the store's constraints.
type Engine struct {
	Store Store
	Log   zerolog.Logger
}

func New(store Store, log zerolog.Logger) Engine {
	return Engine{Store: store, Log: log}
}

func (e Engine) ListConversations(ctx context.Context, f repo.ConversationFilter) ([]domain.Conversation, error) {
	return e.Store.ListConversations(ctx, f)
}

func (e Engine) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	return e.Store.GetConversation(ctx, id)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Store.ListEvents(ctx, f)
}
