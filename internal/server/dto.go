package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"intake/internal/domain"
)

// Request payloads

type CandidateRequest struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	PhoneNumber  string   `json:"phone_number" example:"+15551230000"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	EmailAddress string   `json:"email_address" example:"a@x.com"`
}

// ApplicationRequest is the webhook body announcing a job application.
type ApplicationRequest struct {
	_           struct{}         `json:"-" additionalProperties:"true"`
	ID          string           `json:"id" example:"a1"`
	JobID       string           `json:"job_id" example:"j1"`
	CandidateID string           `json:"candidate_id" example:"c1"`
	Candidate   CandidateRequest `json:"candidate"`
}

func (r ApplicationRequest) event() domain.ApplicationEvent {
	return domain.ApplicationEvent{
		ID:          r.ID,
		JobID:       r.JobID,
		CandidateID: r.CandidateID,
		Candidate: domain.CandidateDTO{
			PhoneNumber:  r.Candidate.PhoneNumber,
			FirstName:    r.Candidate.FirstName,
			LastName:     r.Candidate.LastName,
			EmailAddress: r.Candidate.EmailAddress,
		},
	}
}

type SetStatusRequest struct {
	Status string `json:"status" example:"ONGOING"`
}

// Response payloads

type CandidateResponse struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phoneNumber"`
	EmailAddress string `json:"emailAddress"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	CreatedAt    string `json:"createdAt" format:"date-time"`
}

type ConversationResponse struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidateId"`
	JobID       string             `json:"jobId"`
	Status      string             `json:"status" enum:"CREATED,ONGOING,COMPLETED"`
	CreatedAt   string             `json:"createdAt" format:"date-time"`
	UpdatedAt   string             `json:"updatedAt" format:"date-time"`
	Candidate   *CandidateResponse `json:"candidate,omitempty"`
}

type paginatedConversations struct {
	Items      []ConversationResponse `json:"items"`
	NextCursor string                 `json:"nextCursor,omitempty"`
}

type EventResponse struct {
	ID         string          `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entityKind"`
	EntityID   string          `json:"entityId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func candidateResponse(c domain.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:           c.ID,
		PhoneNumber:  c.PhoneNumber,
		EmailAddress: c.EmailAddress,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		CreatedAt:    c.CreatedAt,
	}
}

func conversationResponse(c domain.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:          c.ID,
		CandidateID: c.CandidateID,
		JobID:       c.JobID,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.Candidate != nil {
		cand := candidateResponse(*c.Candidate)
		resp.Candidate = &cand
	}
	return resp
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
	}
	if json.Valid([]byte(e.Payload)) {
		resp.Payload = json.RawMessage(e.Payload)
	}
	return resp
}

func statusNames() []string {
	names := make([]string, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		names = append(names, string(s))
	}
	return names
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
