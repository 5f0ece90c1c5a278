// Package users implements the user-management console: scoped listing,
// account creation, profile edits and password resets.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/ids"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/repository"
	"hfcloud/console/internal/sessions"
)

var ErrInvalidInput = errors.New("invalid user input")

type Service struct {
	users       repository.UserStore
	credentials *credentials.Store
	sessions    *sessions.Manager
	log         zerolog.Logger
}

func NewService(users repository.UserStore, creds *credentials.Store, sessionManager *sessions.Manager, log zerolog.Logger) *Service {
	if users == nil || creds == nil || sessionManager == nil {
		panic("users: nil dependency")
	}
	return &Service{
		users:       users,
		credentials: creds,
		sessions:    sessionManager,
		log:         log,
	}
}

// List returns the users actor may see whose username or email contains
// search, newest first.
func (s *Service) List(ctx context.Context, actor models.User, search string) ([]models.User, error) {
	all, err := s.users.List(ctx, repository.UserFilter{Search: strings.TrimSpace(search)})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return permissions.FilterVisible(actor, all), nil
}

type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Disabled int `json:"disabled"`
	Admins   int `json:"admins"`
	Users    int `json:"users"`
}

// Stats summarizes the users visible to actor. Admins counts both admin
// roles.
func (s *Service) Stats(ctx context.Context, actor models.User) (Stats, error) {
	visible, err := s.List(ctx, actor, "")
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, u := range visible {
		st.Total++
		if u.Active() {
			st.Active++
		} else {
			st.Disabled++
		}
		if permissions.IsAdmin(u.Role) {
			st.Admins++
		} else {
			st.Users++
		}
	}
	return st, nil
}

func (s *Service) Get(ctx context.Context, actor models.User, id string) (models.User, error) {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if !permissions.CanViewUser(actor, target) {
		return models.User{}, fmt.Errorf("%w: user is outside your scope", permissions.ErrForbidden)
	}
	return target, nil
}

type CreateInput struct {
	Username        string
	Email           string
	Password        string
	Role            models.UserRole
	Status          models.UserStatus
	RelatedProjects []string
}

func (s *Service) Create(ctx context.Context, actor models.User, input CreateInput) (models.User, error) {
	if !permissions.CanCreateUser(actor) {
		return models.User{}, fmt.Errorf("%w: only super administrators can add users", permissions.ErrForbidden)
	}
	return s.create(ctx, actor.ID, input)
}

// Bootstrap creates an account without an acting user, for seeding the
// first super administrator.
func (s *Service) Bootstrap(ctx context.Context, input CreateInput) (models.User, error) {
	return s.create(ctx, "bootstrap", input)
}

func (s *Service) create(ctx context.Context, createdBy string, input CreateInput) (models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return models.User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if input.Role == "" {
		input.Role = models.UserRoleUser
	}
	if !input.Role.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}
	if input.Status == "" {
		input.Status = models.UserStatusActive
	}
	if !input.Status.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, input.Status)
	}

	hash, err := s.credentials.HashNew(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:              ids.New(),
		Username:        username,
		Email:           strings.TrimSpace(input.Email),
		PasswordHash:    hash,
		Role:            input.Role,
		Status:          input.Status,
		RelatedProjects: cleanProjects(input.RelatedProjects),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("role", string(user.Role)).
		Str("created_by", createdBy).
		Msg("user created")

	return s.users.GetByID(ctx, user.ID)
}

// UpdateInput leaves nil fields unchanged.
type UpdateInput struct {
	Username        *string
	Email           *string
	RelatedProjects *[]string
	Role            *models.UserRole
	Status          *models.UserStatus
}

// Update applies input to the target account. Every field is gated
// separately; disabling an account ends all of its sessions.
func (s *Service) Update(ctx context.Context, actor models.User, id string, input UpdateInput) (models.User, error) {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if !permissions.CanEditUser(actor, target) {
		return models.User{}, fmt.Errorf("%w: user is outside your scope", permissions.ErrForbidden)
	}

	updated := target
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" {
			return models.User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		updated.Username = username
	}
	if input.Email != nil {
		updated.Email = strings.TrimSpace(*input.Email)
	}
	if input.RelatedProjects != nil {
		updated.RelatedProjects = cleanProjects(*input.RelatedProjects)
	}
	if input.Role != nil && *input.Role != target.Role {
		if !permissions.CanChangeRole(actor) || actor.ID == target.ID {
			return models.User{}, fmt.Errorf("%w: cannot change this user's role", permissions.ErrForbidden)
		}
		if !input.Role.Valid() {
			return models.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *input.Role)
		}
		updated.Role = *input.Role
	}
	if input.Status != nil && *input.Status != target.Status {
		if !permissions.CanEditUserStatus(actor, target) {
			return models.User{}, fmt.Errorf("%w: cannot change this user's status", permissions.ErrForbidden)
		}
		if !input.Status.Valid() {
			return models.User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *input.Status)
		}
		updated.Status = *input.Status
	}

	if err := s.users.Update(ctx, updated); err != nil {
		return models.User{}, err
	}

	if target.Active() && !updated.Active() {
		if _, err := s.sessions.EndAll(ctx, target.ID, models.SessionEndAccountDisabled); err != nil {
			return models.User{}, fmt.Errorf("user disabled but sessions were not ended: %w", err)
		}
	}

	s.log.Info().Str("user_id", target.ID).Str("by", actor.ID).Msg("user updated")
	return s.users.GetByID(ctx, target.ID)
}

// ResetPassword sets a new password for another account and signs that
// account out everywhere.
func (s *Service) ResetPassword(ctx context.Context, actor models.User, id, newPassword string) error {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !permissions.CanResetPassword(actor, target) {
		return fmt.Errorf("%w: cannot reset this user's password", permissions.ErrForbidden)
	}

	if err := s.credentials.SetPassword(ctx, target.ID, newPassword); err != nil {
		return err
	}
	if _, err := s.sessions.EndAll(ctx, target.ID, models.SessionEndPasswordChanged); err != nil {
		return fmt.Errorf("password reset but sessions were not ended: %w", err)
	}

	s.log.Info().Str("user_id", target.ID).Str("by", actor.ID).Msg("password reset")
	return nil
}

func cleanProjects(projects []string) []string {
	seen := make(map[string]struct{}, len(projects))
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
