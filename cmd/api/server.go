package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"moltworks/agent"
	"moltworks/auth"
	"moltworks/claim"
	"moltworks/fault"
	"moltworks/job"
	"moltworks/submission"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// AuthService is the authentication surface the server depends on.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(tokenString string) (string, auth.Role, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

type JobService interface {
	Create(ctx context.Context, params job.CreateParams) (job.Record, error)
	Get(ctx context.Context, jobID string) (job.Record, error)
	List(ctx context.Context, status job.Status, limit int) ([]job.Record, error)
	ApproveWork(ctx context.Context, jobID, callerID string) error
}

// JobInitializer normalizes fresh postings; the create handler invokes it
// right after the insert, standing in for a record-creation trigger.
type JobInitializer interface {
	Normalize(ctx context.Context, jobID string) error
}

type ClaimService interface {
	File(ctx context.Context, params claim.FileParams) (claim.Record, claim.IntakeOutcome, error)
	Intake(ctx context.Context, claimID string) (claim.IntakeOutcome, error)
	Approve(ctx context.Context, jobID, claimID, callerID string) error
	ListByJob(ctx context.Context, jobID string) ([]claim.Record, error)
	ListByAgent(ctx context.Context, agentID string) ([]claim.Record, error)
}

type SubmissionService interface {
	Submit(ctx context.Context, params submission.SubmitParams) (submission.Record, error)
	ListByJob(ctx context.Context, jobID string) ([]submission.Record, error)
}

type AgentService interface {
	Register(ctx context.Context, callerID, claimLink, xHandle string) (agent.Record, error)
	Verify(ctx context.Context, callerID string, callerRole auth.Role, agentID string) (agent.Record, error)
	Get(ctx context.Context, agentID string) (agent.Record, error)
}

// Server wires HTTP routes to the domain services.
type Server struct {
	authService       AuthService
	jobService        JobService
	jobInitializer    JobInitializer
	claimService      ClaimService
	submissionService SubmissionService
	agentService      AgentService
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/me", s.handleMe)

			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Post("/jobs/{jobID}/approve", s.handleApproveWork)

			r.Post("/jobs/{jobID}/claims", s.handleFileClaim)
			r.Get("/jobs/{jobID}/claims", s.handleListClaims)
			r.Post("/jobs/{jobID}/claims/{claimID}/approve", s.handleApproveClaim)

			r.Post("/jobs/{jobID}/submissions", s.handleSubmitWork)
			r.Get("/jobs/{jobID}/submissions", s.handleListSubmissions)

			r.Get("/claims", s.handleMyClaims)
			r.Post("/claims/{claimID}/intake", s.handleClaimIntake)

			r.Post("/agents/claim", s.handleAgentClaim)
			r.Get("/agents/{agentID}", s.handleGetAgent)
			r.Post("/agents/{agentID}/verify", s.handleVerifyAgent)
		})
	})

	return r
}

// requireAuth resolves the Bearer token into a user identity and role.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func callerRole(r *http.Request) auth.Role {
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return role
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: string(u.Role)}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			writeJSONError(w, http.StatusConflict, "email already registered")
			return
		}
		if errors.Is(err, auth.ErrWeakPassword) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}{Token: result.Token, User: toUserResponse(result.User)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

type jobResponse struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Scope             string  `json:"scope,omitempty"`
	BudgetAmount      float64 `json:"budgetAmount"`
	BudgetCurrency    string  `json:"budgetCurrency"`
	Timeline          string  `json:"timeline,omitempty"`
	DeliverableFormat string  `json:"deliverableFormat,omitempty"`
	CreatedBy         string  `json:"createdBy"`
	CreatedAt         string  `json:"createdAt,omitempty"`
	Status            string  `json:"status,omitempty"`
	EscrowStatus      string  `json:"escrowStatus,omitempty"`
	AssignedAgentID   *string `json:"assignedAgentId,omitempty"`
	ClaimCount        int     `json:"claimCount"`
}

func toJobResponse(rec job.Record) jobResponse {
	resp := jobResponse{
		ID:                rec.ID,
		Title:             rec.Title,
		Scope:             rec.Scope,
		BudgetAmount:      rec.BudgetAmount,
		BudgetCurrency:    string(rec.BudgetCurrency),
		Timeline:          rec.Timeline,
		DeliverableFormat: rec.DeliverableFormat,
		CreatedBy:         rec.CreatedBy,
		Status:            string(rec.Status),
		EscrowStatus:      string(rec.EscrowStatus),
		AssignedAgentID:   rec.AssignedAgentID,
		ClaimCount:        rec.ClaimCount,
	}
	if rec.CreatedAt != nil {
		resp.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title             string  `json:"title"`
		Scope             string  `json:"scope"`
		BudgetAmount      float64 `json:"budgetAmount"`
		BudgetCurrency    string  `json:"budgetCurrency"`
		Timeline          string  `json:"timeline"`
		DeliverableFormat string  `json:"deliverableFormat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.jobService.Create(r.Context(), job.CreateParams{
		CreatorUserID:     callerID(r),
		Title:             body.Title,
		Scope:             body.Scope,
		BudgetAmount:      body.BudgetAmount,
		BudgetCurrency:    job.Currency(body.BudgetCurrency),
		Timeline:          body.Timeline,
		DeliverableFormat: body.DeliverableFormat,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.jobInitializer.Normalize(r.Context(), rec.ID); err != nil {
		writeError(w, err)
		return
	}
	normalized, err := s.jobService.Get(r.Context(), rec.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(normalized))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := job.Status(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := s.jobService.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]jobResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toJobResponse(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []jobResponse `json:"items"`
		Total int           `json:"total"`
	}{Items: items, Total: len(items)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobService.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(rec))
}

func (s *Server) handleApproveWork(w http.ResponseWriter, r *http.Request) {
	if err := s.jobService.ApproveWork(r.Context(), chi.URLParam(r, "jobID"), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type claimResponse struct {
	ID        string  `json:"id"`
	JobID     string  `json:"jobId"`
	AgentID   string  `json:"agentId"`
	Approach  string  `json:"approach"`
	ETA       string  `json:"eta"`
	Questions *string `json:"questions,omitempty"`
	Status    string  `json:"status,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func toClaimResponse(rec claim.Record) claimResponse {
	return claimResponse{
		ID:        rec.ID,
		JobID:     rec.JobID,
		AgentID:   rec.AgentID,
		Approach:  rec.Approach,
		ETA:       rec.ETA,
		Questions: rec.Questions,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleFileClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approach  string  `json:"approach"`
		ETA       string  `json:"eta"`
		Questions *string `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, outcome, err := s.claimService.File(r.Context(), claim.FileParams{
		JobID:     chi.URLParam(r, "jobID"),
		AgentID:   callerID(r),
		Approach:  body.Approach,
		ETA:       body.ETA,
		Questions: body.Questions,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Claim   claimResponse `json:"claim"`
		Outcome string        `json:"outcome"`
	}{Claim: toClaimResponse(rec), Outcome: string(outcome)})
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	records, err := s.claimService.ListByJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeClaimList(w, records)
}

func (s *Server) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	records, err := s.claimService.ListByAgent(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeClaimList(w, records)
}

func writeClaimList(w http.ResponseWriter, records []claim.Record) {
	items := make([]claimResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toClaimResponse(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []claimResponse `json:"items"`
	}{Items: items})
}

// handleClaimIntake re-drives intake for a claim that was stored but never
// decided, e.g. when the decision transaction exhausted its retries after the
// insert. Intake is derived purely from stored state, so re-driving a decided
// claim is a safe no-op.
func (s *Server) handleClaimIntake(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.claimService.Intake(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Outcome string `json:"outcome"`
	}{Outcome: string(outcome)})
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	err := s.claimService.Approve(r.Context(), chi.URLParam(r, "jobID"), chi.URLParam(r, "claimID"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type submissionResponse struct {
	ID        string   `json:"id"`
	JobID     string   `json:"jobId"`
	AgentID   string   `json:"agentId"`
	Summary   string   `json:"summary"`
	Links     []string `json:"links"`
	CreatedAt string   `json:"createdAt"`
}

func toSubmissionResponse(rec submission.Record) submissionResponse {
	return submissionResponse{
		ID:        rec.ID,
		JobID:     rec.JobID,
		AgentID:   rec.AgentID,
		Summary:   rec.Summary,
		Links:     rec.Links,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Summary string   `json:"summary"`
		Links   []string `json:"links"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.submissionService.Submit(r.Context(), submission.SubmitParams{
		JobID:   chi.URLParam(r, "jobID"),
		AgentID: callerID(r),
		Summary: body.Summary,
		Links:   body.Links,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(rec))
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	records, err := s.submissionService.ListByJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]submissionResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toSubmissionResponse(rec))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []submissionResponse `json:"items"`
	}{Items: items})
}

type agentResponse struct {
	AgentID     string `json:"agentId"`
	ClaimLink   string `json:"claimLink,omitempty"`
	XHandle     string `json:"xHandle,omitempty"`
	Verified    bool   `json:"verified"`
	ClaimStatus string `json:"claimStatus"`
}

func toAgentResponse(rec agent.Record) agentResponse {
	return agentResponse{
		AgentID:     rec.AgentID,
		ClaimLink:   rec.ClaimLink,
		XHandle:     rec.XHandle,
		Verified:    rec.Verified,
		ClaimStatus: string(rec.ClaimStatus),
	}
}

func (s *Server) handleAgentClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClaimLink string `json:"claimLink"`
		XHandle   string `json:"xHandle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.agentService.Register(r.Context(), callerID(r), body.ClaimLink, body.XHandle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(rec))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agentService.Get(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(rec))
}

func (s *Server) handleVerifyAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agentService.Verify(r.Context(), callerID(r), callerRole(r), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(rec))
}

type okResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// writeError maps a fault kind onto an HTTP status. Internal errors are
// logged server-side and never leak their message to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case fault.Unauthenticated:
		status = http.StatusUnauthorized
	case fault.PermissionDenied:
		status = http.StatusForbidden
	case fault.InvalidArgument:
		status = http.StatusBadRequest
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.FailedPrecondition:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSONError(w, status, "internal error")
		return
	}
	writeJSONError(w, status, err.Error())
}
