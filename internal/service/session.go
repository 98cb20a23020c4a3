package service

import (
	"context"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/requestctx"
)

// SessionService records sign-in and sign-out of the already-authenticated caller.
// Credential checks live in front of it; this only feeds the audit trail.
type SessionService struct {
	audit *AuditLogger
}

func NewSessionService(audit *AuditLogger) *SessionService {
	return &SessionService{audit: audit}
}

func (s *SessionService) Login(ctx context.Context) (requestctx.Actor, error) {
	actor, ok := requestctx.ActorFrom(ctx)
	if !ok {
		return requestctx.Actor{}, domain.ErrUnauthenticated
	}
	s.audit.LogLogin(ctx)
	return actor, nil
}

func (s *SessionService) Logout(ctx context.Context) error {
	if _, ok := requestctx.ActorFrom(ctx); !ok {
		return domain.ErrUnauthenticated
	}
	s.audit.LogLogout(ctx)
	return nil
}
