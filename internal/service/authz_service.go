package service

import (
	"context"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/repository"
)

// AuthorizationService answers role questions from the authorization table
type AuthorizationService interface {
	// IsSuperAdmin reports whether the user holds the super admin role
	IsSuperAdmin(ctx context.Context, userID string) (bool, error)

	// CanManageEvent reports whether the user organizes the event or is a super admin
	CanManageEvent(ctx context.Context, userID string, event *domain.Event) (bool, error)
}

type authorizationService struct {
	roles repository.RoleRepository
}

// NewAuthorizationService creates a new AuthorizationService
func NewAuthorizationService(roles repository.RoleRepository) AuthorizationService {
	return &authorizationService{roles: roles}
}

// IsSuperAdmin reports whether the user holds the super admin role
func (s *authorizationService) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.roles.HasRole(ctx, userID, domain.RoleSuperAdmin)
}

// CanManageEvent reports whether the user organizes the event or is a super admin
func (s *authorizationService) CanManageEvent(ctx context.Context, userID string, event *domain.Event) (bool, error) {
	if userID == "" || event == nil {
		return false, nil
	}
	if event.OrganizerID == userID {
		return true, nil
	}
	return s.IsSuperAdmin(ctx, userID)
}
