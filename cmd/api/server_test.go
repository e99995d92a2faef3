package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moltworks/agent"
	"moltworks/auth"
	"moltworks/claim"
	"moltworks/fault"
	"moltworks/job"
	"moltworks/submission"
)

type stubAuthService struct {
	registerUser *auth.User
	registerErr  error
	loginResult  auth.LoginResult
	loginErr     error
	tokenUserID  string
	tokenRole    auth.Role
	tokenErr     error
	user         *auth.User
	userErr      error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubAuthService) VerifyToken(_ string) (string, auth.Role, error) {
	return s.tokenUserID, s.tokenRole, s.tokenErr
}

func (s *stubAuthService) GetUserByID(_ context.Context, _ string) (*auth.User, error) {
	return s.user, s.userErr
}

type stubJobService struct {
	created    job.Record
	createErr  error
	got        job.Record
	getErr     error
	listed     []job.Record
	listErr    error
	approveErr error
}

func (s *stubJobService) Create(_ context.Context, _ job.CreateParams) (job.Record, error) {
	return s.created, s.createErr
}

func (s *stubJobService) Get(_ context.Context, _ string) (job.Record, error) {
	return s.got, s.getErr
}

func (s *stubJobService) List(_ context.Context, _ job.Status, _ int) ([]job.Record, error) {
	return s.listed, s.listErr
}

func (s *stubJobService) ApproveWork(_ context.Context, _ string, _ string) error {
	return s.approveErr
}

type stubInitializer struct {
	normalized []string
	err        error
}

func (s *stubInitializer) Normalize(_ context.Context, jobID string) error {
	s.normalized = append(s.normalized, jobID)
	return s.err
}

type stubClaimService struct {
	filed         claim.Record
	outcome       claim.IntakeOutcome
	fileErr       error
	intakeOutcome claim.IntakeOutcome
	intakeErr     error
	approveErr    error
	byJob         []claim.Record
	byAgent       []claim.Record
}

func (s *stubClaimService) File(_ context.Context, _ claim.FileParams) (claim.Record, claim.IntakeOutcome, error) {
	return s.filed, s.outcome, s.fileErr
}

func (s *stubClaimService) Intake(_ context.Context, _ string) (claim.IntakeOutcome, error) {
	return s.intakeOutcome, s.intakeErr
}

func (s *stubClaimService) Approve(_ context.Context, _, _, _ string) error {
	return s.approveErr
}

func (s *stubClaimService) ListByJob(_ context.Context, _ string) ([]claim.Record, error) {
	return s.byJob, nil
}

func (s *stubClaimService) ListByAgent(_ context.Context, _ string) ([]claim.Record, error) {
	return s.byAgent, nil
}

type stubSubmissionService struct {
	submitted submission.Record
	submitErr error
	listed    []submission.Record
}

func (s *stubSubmissionService) Submit(_ context.Context, _ submission.SubmitParams) (submission.Record, error) {
	return s.submitted, s.submitErr
}

func (s *stubSubmissionService) ListByJob(_ context.Context, _ string) ([]submission.Record, error) {
	return s.listed, nil
}

type stubAgentService struct {
	registered agent.Record
	verifyRec  agent.Record
	verifyErr  error
	got        agent.Record
	getErr     error
}

func (s *stubAgentService) Register(_ context.Context, _, _, _ string) (agent.Record, error) {
	return s.registered, nil
}

func (s *stubAgentService) Verify(_ context.Context, _ string, _ auth.Role, _ string) (agent.Record, error) {
	return s.verifyRec, s.verifyErr
}

func (s *stubAgentService) Get(_ context.Context, _ string) (agent.Record, error) {
	return s.got, s.getErr
}

func authedServer(svc *stubAuthService) *Server {
	if svc == nil {
		svc = &stubAuthService{tokenUserID: "user-1", tokenRole: auth.RoleAgent}
	}
	return &Server{authService: svc}
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)
	return rec
}

func TestRegister_Success(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{
			registerUser: &auth.User{ID: "u1", Email: "a@b.c", FullName: "Ada", Role: auth.RolePoster},
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@b.c","full_name":"Ada","password":"longenough"}`))
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "u1" || resp.Role != "poster" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{registerErr: auth.ErrDuplicateEmail},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@b.c","full_name":"Ada","password":"longenough"}`))
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{loginErr: auth.ErrInvalidCredentials},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"wrong"}`))
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_MissingBearerToken(t *testing.T) {
	server := authedServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCreateJob_RunsInitializer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	init := &stubInitializer{}
	server := authedServer(nil)
	server.jobService = &stubJobService{
		created: job.Record{ID: "j1", Title: "Train a model", CreatedBy: "user-1"},
		got: job.Record{
			ID: "j1", Title: "Train a model", CreatedBy: "user-1",
			Status: job.StatusOpen, EscrowStatus: job.EscrowNotFunded,
			CreatedAt: &now,
		},
	}
	server.jobInitializer = init

	rec := doRequest(t, server, http.MethodPost, "/api/jobs", `{"title":"Train a model","budgetAmount":500}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(init.normalized) != 1 || init.normalized[0] != "j1" {
		t.Fatalf("expected initializer to run for j1, got %v", init.normalized)
	}
	var resp jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "OPEN" || resp.EscrowStatus != "NOT_FUNDED" {
		t.Fatalf("expected normalized job in response, got %+v", resp)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	server := authedServer(nil)
	server.jobService = &stubJobService{getErr: fault.New(fault.NotFound, "job: not found")}

	rec := doRequest(t, server, http.MethodGet, "/api/jobs/missing", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFileClaim_ReturnsOutcome(t *testing.T) {
	server := authedServer(nil)
	server.claimService = &stubClaimService{
		filed:   claim.Record{ID: "c1", JobID: "j1", AgentID: "user-1", Approach: "do it", ETA: "2d", Status: claim.StatusPending},
		outcome: claim.OutcomeAccepted,
	}

	rec := doRequest(t, server, http.MethodPost, "/api/jobs/j1/claims", `{"approach":"do it","eta":"2d"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Claim   claimResponse `json:"claim"`
		Outcome string        `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Claim.ID != "c1" || payload.Outcome != "accepted" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestMe_ReturnsCaller(t *testing.T) {
	server := authedServer(&stubAuthService{
		tokenUserID: "user-1",
		tokenRole:   auth.RoleAgent,
		user:        &auth.User{ID: "user-1", Email: "a@b.c", FullName: "Ada", Role: auth.RoleAgent},
	})

	rec := doRequest(t, server, http.MethodGet, "/api/me", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "user-1" || resp.Role != "agent" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestMe_VanishedUser(t *testing.T) {
	server := authedServer(&stubAuthService{
		tokenUserID: "user-1",
		tokenRole:   auth.RoleAgent,
		userErr:     auth.ErrUserNotFound,
	})

	rec := doRequest(t, server, http.MethodGet, "/api/me", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClaimIntake_Redrive(t *testing.T) {
	server := authedServer(nil)
	server.claimService = &stubClaimService{intakeOutcome: claim.OutcomeAlreadyProcessed}

	rec := doRequest(t, server, http.MethodPost, "/api/claims/c1/intake", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Outcome != "already_processed" {
		t.Fatalf("unexpected outcome: %q", payload.Outcome)
	}
}

func TestClaimIntake_MissingClaim(t *testing.T) {
	server := authedServer(nil)
	server.claimService = &stubClaimService{intakeErr: fault.New(fault.NotFound, "claim: not found")}

	rec := doRequest(t, server, http.MethodPost, "/api/claims/missing/intake", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestApproveClaim_LostRace(t *testing.T) {
	server := authedServer(nil)
	server.claimService = &stubClaimService{
		approveErr: fault.New(fault.FailedPrecondition, "claim: job is not open for approval"),
	}

	rec := doRequest(t, server, http.MethodPost, "/api/jobs/j1/claims/c2/approve", "")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for losing approval, got %d", rec.Code)
	}
}

func TestApproveClaim_NotOwner(t *testing.T) {
	server := authedServer(nil)
	server.claimService = &stubClaimService{
		approveErr: fault.New(fault.PermissionDenied, "claim: only the job owner can approve claims"),
	}

	rec := doRequest(t, server, http.MethodPost, "/api/jobs/j1/claims/c1/approve", "")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSubmitWork_WrongAgent(t *testing.T) {
	server := authedServer(nil)
	server.submissionService = &stubSubmissionService{
		submitErr: fault.New(fault.PermissionDenied, "submission: only the assigned agent can submit work"),
	}

	rec := doRequest(t, server, http.MethodPost, "/api/jobs/j1/submissions", `{"summary":"done"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestApproveWork_Success(t *testing.T) {
	server := authedServer(nil)
	server.jobService = &stubJobService{}

	rec := doRequest(t, server, http.MethodPost, "/api/jobs/j1/approve", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp okResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK {
		t.Fatal("expected ok response")
	}
}

func TestVerifyAgent_NonAdmin(t *testing.T) {
	server := authedServer(nil)
	server.agentService = &stubAgentService{
		verifyErr: fault.New(fault.PermissionDenied, "agent: only admins can verify agents"),
	}

	rec := doRequest(t, server, http.MethodPost, "/api/agents/a1/verify", "")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestInternalError_DoesNotLeak(t *testing.T) {
	server := authedServer(nil)
	server.jobService = &stubJobService{getErr: fault.New(fault.Internal, "job: connection refused to 10.0.0.5")}

	rec := doRequest(t, server, http.MethodGet, "/api/jobs/j1", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatal("internal detail must not reach the client")
	}
}
