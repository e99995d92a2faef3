package agent

import (
	"context"
	"strings"

	"moltworks/auth"
	"moltworks/fault"
)

// Repository defines the data access required by the service.
type Repository interface {
	Register(ctx context.Context, agentID, claimLink, xHandle string) (Record, error)
	Verify(ctx context.Context, agentID, verifiedBy string) (Record, error)
	Get(ctx context.Context, agentID string) (Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register files an identity claim for the calling agent. The claim link
// should point at public evidence tying the agent to the handle.
func (s *Service) Register(ctx context.Context, callerID, claimLink, xHandle string) (Record, error) {
	if callerID == "" {
		return Record{}, fault.New(fault.Unauthenticated, "agent: authentication required")
	}
	if strings.TrimSpace(claimLink) == "" {
		return Record{}, fault.New(fault.InvalidArgument, "agent: claimLink is required")
	}
	if strings.TrimSpace(xHandle) == "" {
		return Record{}, fault.New(fault.InvalidArgument, "agent: xHandle is required")
	}
	return s.repo.Register(ctx, callerID, claimLink, xHandle)
}

// Verify marks an agent identity as checked. Admin only.
func (s *Service) Verify(ctx context.Context, callerID string, callerRole auth.Role, agentID string) (Record, error) {
	if callerID == "" {
		return Record{}, fault.New(fault.Unauthenticated, "agent: authentication required")
	}
	if callerRole != auth.RoleAdmin {
		return Record{}, fault.New(fault.PermissionDenied, "agent: only admins can verify agents")
	}
	if agentID == "" {
		return Record{}, fault.New(fault.InvalidArgument, "agent: agentId is required")
	}
	return s.repo.Verify(ctx, agentID, callerID)
}

func (s *Service) Get(ctx context.Context, agentID string) (Record, error) {
	if agentID == "" {
		return Record{}, fault.New(fault.InvalidArgument, "agent: agentId is required")
	}
	return s.repo.Get(ctx, agentID)
}
