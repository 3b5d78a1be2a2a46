package engine

import (
	"context"
	"errors"
	"strings"

	"intake/internal/domain"
	"intake/internal/repo"
)

// ResolveCandidate finds the candidate matching identity by email or phone, or
// creates one under id. An existing candidate is returned unchanged.
//
// If the insert loses a race against a concurrent first delivery for the same
// person, the winner's row is re-read and returned. Every other store error,
// including an id already held by a different person, is returned as-is.
func (e Engine) ResolveCandidate(ctx context.Context, id string, identity domain.CandidateDTO) (domain.Candidate, error) {
	email := normalizeEmail(identity.EmailAddress)
	phone := strings.TrimSpace(identity.PhoneNumber)

	existing, err := e.Store.FindCandidateByEmailOrPhone(ctx, email, phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Candidate{}, err
	}

	created, err := e.Store.CreateCandidate(ctx, domain.Candidate{
		ID:           id,
		EmailAddress: email,
		PhoneNumber:  phone,
		FirstName:    strings.TrimSpace(identity.FirstName),
		LastName:     strings.TrimSpace(identity.LastName),
	})
	if err == nil {
		e.Log.Debug().Str("candidate_id", created.ID).Msg("candidate created")
		return created, nil
	}
	if !repo.IsConstraint(err, "") {
		return domain.Candidate{}, err
	}
	winner, findErr := e.Store.FindCandidateByEmailOrPhone(ctx, email, phone)
	if findErr != nil {
		return domain.Candidate{}, err
	}
	return winner, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
