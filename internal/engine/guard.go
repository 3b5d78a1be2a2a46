package engine

import (
	"context"
	"errors"

	"intake/internal/repo"
)

// Decision is the outcome of the admission pre-check.
type Decision int

const (
	Admit Decision = iota
	RejectActiveConversation
	RejectDuplicateApplication
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "ADMIT"
	case RejectActiveConversation:
		return "REJECT_ACTIVE_CONVERSATION"
	case RejectDuplicateApplication:
		return "REJECT_DUPLICATE_APPLICATION"
	default:
		return "UNKNOWN"
	}
}

// CheckAdmission is the optimistic pre-check. It gives a fast, precise
// rejection when a conflict is already persisted; the store constraints remain
// the authority under concurrency.
//
// A non-terminal conversation for another job is an active-conversation
// rejection and takes precedence. A conversation for this exact job, in any
// status, is a duplicate.
func (e Engine) CheckAdmission(ctx context.Context, candidateID, jobID string) (Decision, error) {
	convs, err := e.Store.ListConversationsByCandidate(ctx, candidateID)
	if err != nil {
		return Admit, err
	}
	for _, c := range convs {
		if c.Status.NonTerminal() && c.JobID != jobID {
			return RejectActiveConversation, nil
		}
	}
	_, err = e.Store.FindConversationByCandidateAndJob(ctx, candidateID, jobID)
	if err == nil {
		return RejectDuplicateApplication, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return Admit, err
	}
	return Admit, nil
}
