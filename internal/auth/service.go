// Package auth composes credential checks, device-limited sessions and access
// tokens into login, logout, password change and session restore.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
	"hfcloud/console/internal/security"
	"hfcloud/console/internal/sessions"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrSessionEnded    = errors.New("session expired or signed out")
)

// Principal is an authenticated user together with the session the request
// arrived on.
type Principal struct {
	User    models.User
	Session models.Session
}

type Service struct {
	credentials *credentials.Store
	sessions    *sessions.Manager
	users       repository.UserStore
	tokens      *security.TokenIssuer
	log         zerolog.Logger
}

func NewService(
	creds *credentials.Store,
	sessionManager *sessions.Manager,
	users repository.UserStore,
	tokens *security.TokenIssuer,
	log zerolog.Logger,
) *Service {
	if creds == nil || sessionManager == nil || users == nil || tokens == nil {
		panic("auth: nil dependency")
	}
	return &Service{
		credentials: creds,
		sessions:    sessionManager,
		users:       users,
		tokens:      tokens,
		log:         log,
	}
}

type LoginInput struct {
	Username string
	Password string
	Device   sessions.Device
}

type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
	Session     models.Session
}

// Login validates the credentials, admits a new session under the role's
// device limit and issues an access token bound to that session.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	user, err := s.credentials.ValidateCredentials(ctx, input.Username, input.Password)
	if err != nil {
		return LoginResult{}, err
	}

	session, err := s.sessions.Create(ctx, user, input.Device)
	if err != nil {
		return LoginResult{}, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, session.ID, user.Username, string(user.Role))
	if err != nil {
		if endErr := s.sessions.End(ctx, session.ID, models.SessionEndRevoked); endErr != nil {
			s.log.Warn().Err(endErr).Str("session_id", session.ID).Msg("release session after token failure")
		}
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, session.LoginAt); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("record last login failed")
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("session_id", session.ID).
		Str("ip", input.Device.IPAddress).
		Msg("user signed in")

	return LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        user,
		Session:     session,
	}, nil
}

// Logout ends the session. An empty or already ended session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.End(ctx, sessionID, models.SessionEndLogout)
}

// ChangePassword replaces the principal's password and then ends every
// session of that user, the calling one included.
func (s *Service) ChangePassword(ctx context.Context, principal Principal, oldPassword, newPassword string) error {
	if err := s.credentials.UpdatePassword(ctx, principal.User.ID, oldPassword, newPassword); err != nil {
		return err
	}

	if _, err := s.sessions.EndAll(ctx, principal.User.ID, models.SessionEndPasswordChanged); err != nil {
		return fmt.Errorf("password changed but sessions were not ended: %w", err)
	}
	return nil
}

// Restore resolves an access token back to its principal without asking for
// the password again. The session must still be live and the account active;
// on success the session's activity is refreshed.
func (s *Service) Restore(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Principal{}, ErrSessionEnded
		}
		return Principal{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.UserID {
		return Principal{}, ErrSessionEnded
	}
	if !s.sessions.Live(session) {
		if session.IsActive {
			if err := s.sessions.End(ctx, session.ID, models.SessionEndExpired); err != nil {
				s.log.Warn().Err(err).Str("session_id", session.ID).Msg("expire idle session")
			}
		}
		return Principal{}, ErrSessionEnded
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Principal{}, ErrSessionEnded
		}
		return Principal{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active() {
		if err := s.sessions.End(ctx, session.ID, models.SessionEndAccountDisabled); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("end session of disabled user")
		}
		return Principal{}, ErrSessionEnded
	}

	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("touch session failed")
	}

	return Principal{User: user, Session: session}, nil
}

// Reissue mints a fresh access token for the principal's current session.
func (s *Service) Reissue(principal Principal) (string, time.Time, error) {
	u := principal.User
	return s.tokens.Issue(u.ID, principal.Session.ID, u.Username, string(u.Role))
}

// Sessions lists the live sessions of the principal's account.
func (s *Service) Sessions(ctx context.Context, principal Principal) ([]models.Session, error) {
	return s.sessions.ListActive(ctx, principal.User.ID)
}

func (s *Service) DeviceLimit(role models.UserRole) int {
	return s.sessions.Limit(role)
}
