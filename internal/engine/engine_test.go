package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"intake/internal/db"
	"intake/internal/domain"
	"intake/internal/engine"
	"intake/internal/migrate"
	"intake/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn, db.DialectSQLite)
	r.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: engine.New(r, zerolog.Nop()), Repo: r, Ctx: context.Background()}
}

func event(id, jobID, candidateID, email, phone string) domain.ApplicationEvent {
	return domain.ApplicationEvent{
		ID:          id,
		JobID:       jobID,
		CandidateID: candidateID,
		Candidate: domain.CandidateDTO{
			PhoneNumber:  phone,
			FirstName:    "A",
			LastName:     "B",
			EmailAddress: email,
		},
	}
}

func TestAdmitDuplicateActiveScenario(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if conv.Status != domain.StatusCreated {
		t.Fatalf("expected CREATED, got %s", conv.Status)
	}
	if conv.CandidateID != "c1" || conv.JobID != "j1" || conv.ID == "" || conv.CreatedAt == "" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if _, err := env.Repo.GetCandidate(env.Ctx, "c1"); err != nil {
		t.Fatalf("candidate not created: %v", err)
	}

	_, err = env.Engine.AdmitApplication(env.Ctx, event("a2", "j1", "c1", "a@x.com", "+15551230000"))
	if !errors.Is(err, engine.ErrDuplicateApplication) {
		t.Fatalf("expected DUPLICATE_APPLICATION, got %v", err)
	}

	_, err = env.Engine.AdmitApplication(env.Ctx, event("a3", "j2", "c1", "a@x.com", "+15551230000"))
	if !errors.Is(err, engine.ErrActiveConversation) {
		t.Fatalf("expected ACTIVE_CONVERSATION, got %v", err)
	}
	var rej *engine.RejectionError
	if !errors.As(err, &rej) || rej.Code != engine.CodeActiveConversation {
		t.Fatalf("expected rejection code, got %v", err)
	}

	if n, _ := env.Repo.CountConversations(env.Ctx, "c1", "j1"); n != 1 {
		t.Fatalf("expected one conversation for pair, got %d", n)
	}
	if n, _ := env.Repo.CountConversations(env.Ctx, "c1", "j2"); n != 0 {
		t.Fatalf("expected no conversation for j2, got %d", n)
	}
}

func TestDuplicateAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = env.Engine.AdmitApplication(env.Ctx, event("a2", "j1", "c1", "a@x.com", "+15551230000"))
	if !errors.Is(err, engine.ErrDuplicateApplication) {
		t.Fatalf("expected DUPLICATE_APPLICATION after completion, got %v", err)
	}
}

func TestActiveConversationBlocksOtherJobs(t *testing.T) {
	for _, status := range []domain.ConversationStatus{domain.StatusCreated, domain.StatusOngoing} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			conv, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
			if err != nil {
				t.Fatalf("admit: %v", err)
			}
			if status != domain.StatusCreated {
				if _, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, status); err != nil {
					t.Fatalf("set status: %v", err)
				}
			}
			_, err = env.Engine.AdmitApplication(env.Ctx, event("a2", "never-used", "c1", "a@x.com", "+15551230000"))
			if !errors.Is(err, engine.ErrActiveConversation) {
				t.Fatalf("expected ACTIVE_CONVERSATION, got %v", err)
			}
		})
	}
}

func TestCompletedConversationAllowsNewJob(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	next, err := env.Engine.AdmitApplication(env.Ctx, event("a2", "j2", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("expected admission for new job: %v", err)
	}
	if next.JobID != "j2" || next.Status != domain.StatusCreated {
		t.Fatalf("unexpected conversation %+v", next)
	}
}

func TestActiveTakesPrecedenceOverDuplicate(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit j1: %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, first.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.Engine.AdmitApplication(env.Ctx, event("a2", "j2", "c1", "a@x.com", "+15551230000")); err != nil {
		t.Fatalf("admit j2: %v", err)
	}
	// j1 is a duplicate and j2 is active; the active rejection wins
	decision, err := env.Engine.CheckAdmission(env.Ctx, "c1", "j1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision != engine.RejectActiveConversation {
		t.Fatalf("expected %s, got %s", engine.RejectActiveConversation, decision)
	}
	_, err = env.Engine.AdmitApplication(env.Ctx, event("a3", "j1", "c1", "a@x.com", "+15551230000"))
	if !errors.Is(err, engine.ErrActiveConversation) {
		t.Fatalf("expected ACTIVE_CONVERSATION, got %v", err)
	}
}

func TestCandidateIdentityMerge(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "same@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, first.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	second, err := env.Engine.AdmitApplication(env.Ctx, event("a2", "j2", "c-other", "SAME@x.com ", "+15559999999"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if second.CandidateID != "c1" {
		t.Fatalf("expected merge into c1, got %s", second.CandidateID)
	}
	if _, err := env.Repo.GetCandidate(env.Ctx, "c-other"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no second candidate, got %v", err)
	}

	byPhone, err := env.Engine.ResolveCandidate(env.Ctx, "c-third", domain.CandidateDTO{EmailAddress: "new@x.com", PhoneNumber: "+15551230000", FirstName: "Z", LastName: "Z"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if byPhone.ID != "c1" || byPhone.FirstName != "A" {
		t.Fatalf("expected unchanged c1 by phone, got %+v", byPhone)
	}
}

func TestConcurrentIdenticalAdmissions(t *testing.T) {
	env := newTestEnv(t)
	const n = 8
	results := make([]engine.Result, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			results[i] = env.Engine.Admit(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
			return nil
		})
	}
	_ = g.Wait()
	admitted, duplicates := 0, 0
	for _, res := range results {
		switch res.Kind {
		case engine.Admitted:
			admitted++
		case engine.DuplicateApplication:
			duplicates++
		default:
			t.Fatalf("unexpected outcome %s: %v", res.Kind, res.Err)
		}
	}
	if admitted != 1 || duplicates != n-1 {
		t.Fatalf("expected 1 admitted and %d duplicates, got %d and %d", n-1, admitted, duplicates)
	}
	if count, _ := env.Repo.CountConversations(env.Ctx, "c1", "j1"); count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

// preCheckBlindStore hides conversations only from the pre-check list and
// from the first pair lookup.
type preCheckBlindStore struct {
	engine.Store
	pairLookups int
}

func (*preCheckBlindStore) ListConversationsByCandidate(context.Context, string) ([]domain.Conversation, error) {
	return nil, nil
}

func (s *preCheckBlindStore) FindConversationByCandidateAndJob(ctx context.Context, candidateID, jobID string) (domain.Conversation, error) {
	s.pairLookups++
	if s.pairLookups == 1 {
		return domain.Conversation{}, repo.ErrNotFound
	}
	return s.Store.FindConversationByCandidateAndJob(ctx, candidateID, jobID)
}

func TestLostRaceClassification(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	same := engine.New(&preCheckBlindStore{Store: env.Repo}, zerolog.Nop())
	if res := same.Admit(env.Ctx, event("a2", "j1", "c1", "a@x.com", "+15551230000")); res.Kind != engine.DuplicateApplication {
		t.Fatalf("expected duplicate for same pair, got %s: %v", res.Kind, res.Err)
	}

	other := engine.New(&preCheckBlindStore{Store: env.Repo}, zerolog.Nop())
	if res := other.Admit(env.Ctx, event("a3", "j2", "c1", "a@x.com", "+15551230000")); res.Kind != engine.ActiveConversation {
		t.Fatalf("expected active for other job, got %s: %v", res.Kind, res.Err)
	}

	if _, err := env.Engine.SetConversationStatus(env.Ctx, first.ID, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	completed := engine.New(&preCheckBlindStore{Store: env.Repo}, zerolog.Nop())
	if res := completed.Admit(env.Ctx, event("a4", "j1", "c1", "a@x.com", "+15551230000")); res.Kind != engine.DuplicateApplication {
		t.Fatalf("expected duplicate from pair constraint, got %s: %v", res.Kind, res.Err)
	}
}

// blindCandidateStore misses the first candidate lookup, as if a concurrent
// first delivery inserted the candidate after it.
type blindCandidateStore struct {
	engine.Store
	lookups int
}

func (s *blindCandidateStore) FindCandidateByEmailOrPhone(ctx context.Context, email, phone string) (domain.Candidate, error) {
	s.lookups++
	if s.lookups == 1 {
		return domain.Candidate{}, repo.ErrNotFound
	}
	return s.Store.FindCandidateByEmailOrPhone(ctx, email, phone)
}

func TestResolveCandidateLostRace(t *testing.T) {
	env := newTestEnv(t)
	original, err := env.Engine.ResolveCandidate(env.Ctx, "c1", domain.CandidateDTO{EmailAddress: "a@x.com", PhoneNumber: "+15551230000", FirstName: "A", LastName: "B"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	blind := engine.New(&blindCandidateStore{Store: env.Repo}, zerolog.Nop())
	got, err := blind.ResolveCandidate(env.Ctx, "c1", domain.CandidateDTO{EmailAddress: "a@x.com", PhoneNumber: "+15551230000", FirstName: "A", LastName: "B"})
	if err != nil {
		t.Fatalf("expected reconciliation, got %v", err)
	}
	if got.ID != original.ID {
		t.Fatalf("expected %s, got %s", original.ID, got.ID)
	}
}

func TestResolveCandidateIDCollisionSurfaces(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ResolveCandidate(env.Ctx, "c1", domain.CandidateDTO{EmailAddress: "a@x.com", PhoneNumber: "+15551230000"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err := env.Engine.ResolveCandidate(env.Ctx, "c1", domain.CandidateDTO{EmailAddress: "other@x.com", PhoneNumber: "+15559999999"})
	if !repo.IsConstraint(err, repo.ConstraintCandidateID) {
		t.Fatalf("expected id constraint error, got %v", err)
	}
	res := env.Engine.Admit(env.Ctx, event("a9", "j9", "c1", "other@x.com", "+15559999999"))
	if res.Kind != engine.StoreFailure || !repo.IsConstraint(res.Err, repo.ConstraintCandidateID) {
		t.Fatalf("expected store failure carrying the constraint error, got %s: %v", res.Kind, res.Err)
	}
}

var errBoom = errors.New("store unavailable")

type failingStore struct {
	engine.Store
}

func (failingStore) FindCandidateByEmailOrPhone(context.Context, string, string) (domain.Candidate, error) {
	return domain.Candidate{}, errBoom
}

func TestStoreFailurePassesThrough(t *testing.T) {
	env := newTestEnv(t)
	e := engine.New(failingStore{Store: env.Repo}, zerolog.Nop())
	res := e.Admit(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if res.Kind != engine.StoreFailure || res.Err != errBoom {
		t.Fatalf("expected untouched store error, got %s: %v", res.Kind, res.Err)
	}
	_, err := e.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.Engine.AdmitApplication(env.Ctx, event("a1", "j1", "c1", "a@x.com", "+15551230000"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	same, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusCreated)
	if err != nil || same.Status != domain.StatusCreated {
		t.Fatalf("no-op update: %v", err)
	}
	ongoing, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusOngoing)
	if err != nil || ongoing.Status != domain.StatusOngoing {
		t.Fatalf("to ONGOING: %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusCreated); err == nil {
		t.Fatalf("expected backward transition error")
	}
	done, err := env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusCompleted)
	if err != nil || done.Status != domain.StatusCompleted {
		t.Fatalf("to COMPLETED: %v", err)
	}
	_, err = env.Engine.SetConversationStatus(env.Ctx, conv.ID, domain.StatusOngoing)
	var te *engine.TransitionError
	if !errors.As(err, &te) || te.From != domain.StatusCompleted {
		t.Fatalf("expected transition error from COMPLETED, got %v", err)
	}
	if _, err := env.Engine.SetConversationStatus(env.Ctx, "missing", domain.StatusOngoing); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
