package engine

import (
	"context"
	"errors"

	"intake/internal/domain"
	"intake/internal/repo"
)

const (
	CodeActiveConversation   = "ACTIVE_CONVERSATION"
	CodeDuplicateApplication = "DUPLICATE_APPLICATION"
)

// RejectionError is a domain rejection of an application. Match with
// errors.Is against ErrActiveConversation or ErrDuplicateApplication.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Code == e.Code
}

var (
	ErrActiveConversation   = &RejectionError{Code: CodeActiveConversation, Message: "candidate has an active conversation"}
	ErrDuplicateApplication = &RejectionError{Code: CodeDuplicateApplication, Message: "candidate already applied for this job"}
)

// ResultKind enumerates every admission outcome.
type ResultKind int

const (
	Admitted ResultKind = iota
	ActiveConversation
	DuplicateApplication
	StoreFailure
)

func (k ResultKind) String() string {
	switch k {
	case Admitted:
		return "admitted"
	case ActiveConversation:
		return "active_conversation"
	case DuplicateApplication:
		return "duplicate_application"
	case StoreFailure:
		return "store_failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of one admission. Conversation is set only for
// Admitted; Err is set for every other kind.
type Result struct {
	Kind         ResultKind
	Conversation domain.Conversation
	Err          error
}

func admitted(c domain.Conversation) Result { return Result{Kind: Admitted, Conversation: c} }

func rejected(kind ResultKind) Result {
	if kind == ActiveConversation {
		return Result{Kind: kind, Err: ErrActiveConversation}
	}
	return Result{Kind: kind, Err: ErrDuplicateApplication}
}

func failed(err error) Result { return Result{Kind: StoreFailure, Err: err} }

// AdmitApplication creates a CREATED conversation for the event's candidate
// and job, or fails with ErrActiveConversation, ErrDuplicateApplication or the
// underlying store error.
func (e Engine) AdmitApplication(ctx context.Context, ev domain.ApplicationEvent) (domain.Conversation, error) {
	res := e.Admit(ctx, ev)
	if res.Kind == Admitted {
		return res.Conversation, nil
	}
	return domain.Conversation{}, res.Err
}

// Admit runs resolve, pre-check and insert, and classifies the outcome.
func (e Engine) Admit(ctx context.Context, ev domain.ApplicationEvent) Result {
	res := e.admit(ctx, ev)
	logEvt := e.Log.Info()
	if res.Kind == StoreFailure {
		logEvt = e.Log.Error().Err(res.Err)
	}
	logEvt.
		Str("event_id", ev.ID).
		Str("candidate_id", ev.CandidateID).
		Str("job_id", ev.JobID).
		Str("outcome", res.Kind.String()).
		Msg("admission decided")
	return res
}

func (e Engine) admit(ctx context.Context, ev domain.ApplicationEvent) Result {
	candidate, err := e.ResolveCandidate(ctx, ev.CandidateID, ev.Candidate)
	if err != nil {
		return failed(err)
	}

	decision, err := e.CheckAdmission(ctx, candidate.ID, ev.JobID)
	if err != nil {
		return failed(err)
	}
	switch decision {
	case RejectActiveConversation:
		return rejected(ActiveConversation)
	case RejectDuplicateApplication:
		return rejected(DuplicateApplication)
	}

	conv, err := e.Store.CreateConversation(ctx, candidate.ID, ev.JobID, domain.StatusCreated)
	switch {
	case err == nil:
		return admitted(conv)
	case repo.IsConstraint(err, repo.ConstraintCandidateJob):
		return rejected(DuplicateApplication)
	case repo.IsConstraint(err, repo.ConstraintActiveConversation):
		// A concurrent insert for the same pair can trip the active index
		// before the pair constraint; the pair decides which rejection it is.
		_, findErr := e.Store.FindConversationByCandidateAndJob(ctx, candidate.ID, ev.JobID)
		if findErr == nil {
			return rejected(DuplicateApplication)
		}
		if errors.Is(findErr, repo.ErrNotFound) {
			return rejected(ActiveConversation)
		}
		return failed(findErr)
	default:
		return failed(err)
	}
}
