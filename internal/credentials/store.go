// Package credentials validates username/password pairs and changes
// passwords. Callers only ever see ErrInvalidCredentials for a rejected
// login; the concrete cause is logged at debug level.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
	"hfcloud/console/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password too short")
)

type Store struct {
	users     repository.UserStore
	hasher    *security.Hasher
	minLength int
	dummyHash []byte
	log       zerolog.Logger
}

func NewStore(users repository.UserStore, hasher *security.Hasher, minLength int, log zerolog.Logger) *Store {
	if users == nil || hasher == nil {
		panic("credentials: nil dependency")
	}

	// Verified against for unknown usernames.
	dummy, err := hasher.Hash("hfcloud-dummy-password")
	if err != nil {
		panic(fmt.Sprintf("credentials: hash dummy password: %v", err))
	}

	return &Store{
		users:     users,
		hasher:    hasher,
		minLength: minLength,
		dummyHash: dummy,
		log:       log,
	}
}

// ValidateCredentials returns the matching active user or
// ErrInvalidCredentials. Store failures other than a missing user are
// returned wrapped.
func (s *Store) ValidateCredentials(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			s.log.Debug().Str("username", username).Msg("login rejected: unknown user")
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return models.User{}, ErrInvalidCredentials
	}
	if !ok {
		s.log.Debug().Str("user_id", user.ID).Msg("login rejected: bad password")
		return models.User{}, ErrInvalidCredentials
	}
	if !user.Active() {
		s.log.Debug().Str("user_id", user.ID).Msg("login rejected: account disabled")
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// UpdatePassword re-checks oldPassword against the stored record before
// writing newPassword. Any mismatch or missing user yields
// ErrInvalidCredentials.
func (s *Store) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := s.CheckStrength(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		s.log.Debug().Str("user_id", userID).Msg("password change rejected: old password mismatch")
		return ErrInvalidCredentials
	}

	return s.SetPassword(ctx, userID, newPassword)
}

// SetPassword replaces the password without checking the old one.
func (s *Store) SetPassword(ctx context.Context, userID, newPassword string) error {
	hash, err := s.HashNew(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HashNew checks password strength and hashes it for storage.
func (s *Store) HashNew(password string) ([]byte, error) {
	if err := s.CheckStrength(password); err != nil {
		return nil, err
	}
	return s.hasher.Hash(password)
}

func (s *Store) CheckStrength(password string) error {
	if utf8.RuneCountInString(password) < s.minLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, s.minLength)
	}
	return nil
}
