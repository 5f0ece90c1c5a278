// Package memory implements the repository contracts in process memory. It
// backs tests and the "memory" datastore driver; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

type UserStore struct {
	mu sync.RWMutex

	users      map[string]models.User // id -> user
	byUsername map[string]string      // username -> id
	now        func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:      make(map[string]models.User),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

// SetClock replaces the clock used for CreatedAt and UpdatedAt.
func (s *UserStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *UserStore) Create(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[user.Username]; exists {
		return repository.ErrUsernameTaken
	}

	now := s.now().UTC()
	clone := user.Clone()
	if clone.RelatedProjects == nil {
		clone.RelatedProjects = []string{}
	}
	clone.CreatedAt = now
	clone.UpdatedAt = now

	s.users[clone.ID] = clone
	s.byUsername[clone.Username] = clone.ID
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *UserStore) List(ctx context.Context, filter repository.UserFilter) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var users []models.User
	for _, user := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Username), search) &&
			!strings.Contains(strings.ToLower(user.Email), search) {
			continue
		}
		users = append(users, user.Clone())
	}

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID > users[j].ID
	})
	return users, nil
}

func (s *UserStore) Update(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if owner, taken := s.byUsername[user.Username]; taken && owner != user.ID {
		return repository.ErrUsernameTaken
	}

	delete(s.byUsername, existing.Username)
	existing.Username = user.Username
	existing.Email = user.Email
	existing.Role = user.Role
	existing.Status = user.Status
	existing.RelatedProjects = append([]string{}, user.RelatedProjects...)
	existing.UpdatedAt = s.now().UTC()

	s.users[existing.ID] = existing
	s.byUsername[existing.Username] = existing.ID
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	return s.mutate(id, func(u *models.User) {
		u.PasswordHash = append([]byte(nil), passwordHash...)
	})
}

func (s *UserStore) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	return s.mutate(id, func(u *models.User) {
		u.Status = status
	})
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil
	}
	at = at.UTC()
	user.LastLoginAt = &at
	s.users[id] = user
	return nil
}

func (s *UserStore) mutate(id string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return nil
}
