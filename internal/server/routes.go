package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intake/internal/domain"
	"intake/internal/engine"
	"intake/internal/repo"
)

func registerWebhook(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-application",
		Method:        http.MethodPost,
		Path:          "/webhook/applications",
		Summary:       "Admit a job application",
		Description:   "Resolves the candidate and opens a CREATED conversation for the job.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ApplicationRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		ev := input.Body.event()
		if err := ev.Validate(); err != nil {
			return nil, handleError(err)
		}
		conv, err := e.AdmitApplication(ctx, ev)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(conv)}, nil
	})
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" doc:"CREATED, ONGOING or COMPLETED"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedConversations `json:"body"`
	}, error) {
		filter := repo.ConversationFilter{}
		if input.Status != "" {
			status, ok := domain.ParseStatus(input.Status)
			if !ok {
				return nil, invalidStatus(input.Status)
			}
			filter.Status = status
		}
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		filter.Limit = limit + 1
		filter.CursorCreatedAt, filter.CursorID = ts, id
		items, err := e.ListConversations(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedConversations{Items: []ConversationResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, c := range items {
			resp.Items = append(resp.Items, conversationResponse(c))
		}
		return &struct {
			Body paginatedConversations `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}",
		Summary:     "Get conversation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		conv, err := e.GetConversation(ctx, input.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, conversationNotFound(input.ID)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(conv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-conversation-status",
		Method:      http.MethodPatch,
		Path:        "/conversations/{id}/status",
		Summary:     "Move a conversation forward in its lifecycle",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		status, ok := domain.ParseStatus(input.Body.Status)
		if !ok {
			return nil, invalidStatus(input.Body.Status)
		}
		conv, err := e.SetConversationStatus(ctx, input.ID, status)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, conversationNotFound(input.ID)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: conversationResponse(conv)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"candidate,conversation"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListEvents(ctx, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			CursorTS:   ts,
			CursorID:   id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.TS, last.ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func invalidStatus(raw string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", "invalid status provided", map[string]any{
		"status":  raw,
		"allowed": statusNames(),
	})
}

func conversationNotFound(id string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", "conversation not found", map[string]any{"id": id})
}
