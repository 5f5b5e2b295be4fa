package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// DirectoryService maintains who holds each role in an enterprise.
type DirectoryService struct {
	roles repository.RoleDirectory
	log   *logger.Logger
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(roles repository.RoleDirectory, log *logger.Logger) *DirectoryService {
	return &DirectoryService{roles: roles, log: log}
}

// Assign gives userID the role within the actor's enterprise.
func (s *DirectoryService) Assign(ctx context.Context, actor Actor, role repository.Role, userID, email string) (*repository.RoleHolder, error) {
	if actor.Role != repository.RoleDirector {
		return nil, errors.Unauthorized("only DIRECTOR may assign roles")
	}
	role = repository.Role(strings.ToUpper(strings.TrimSpace(string(role))))
	if !repository.Roles.Has(role) {
		return nil, errors.InvalidInput("role", "unknown role "+string(role))
	}
	if err := requireText("user_id", userID); err != nil {
		return nil, err
	}

	h := repository.RoleHolder{
		EnterpriseID: actor.EnterpriseID,
		Role:         role,
		UserID:       strings.TrimSpace(userID),
		Email:        strings.TrimSpace(email),
	}
	if err := s.roles.Assign(ctx, h); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("enterprise_id", h.EnterpriseID).
		Str("role", string(h.Role)).
		Str("user_id", h.UserID).
		Msg("Role assigned")

	return &h, nil
}

// Holders lists the users holding role in the actor's enterprise.
func (s *DirectoryService) Holders(ctx context.Context, actor Actor, role repository.Role) ([]repository.RoleHolder, error) {
	role = repository.Role(strings.ToUpper(strings.TrimSpace(string(role))))
	if !repository.Roles.Has(role) {
		return nil, errors.InvalidInput("role", "unknown role "+string(role))
	}
	return s.roles.Holders(ctx, actor.EnterpriseID, role)
}
