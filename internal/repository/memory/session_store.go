package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository"
)

// SessionStore keeps sessions in a map. A single mutex makes the device limit
// check and insert in CreateWithinLimit atomic.
type SessionStore struct {
	mu sync.Mutex

	sessions map[string]models.Session      // session_id -> session
	byUser   map[string]map[string]struct{} // user_id -> session ids
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]models.Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *SessionStore) CreateWithinLimit(ctx context.Context, session models.Session, limit int, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := 0
	for id := range s.byUser[session.UserID] {
		existing := s.sessions[id]
		if !existing.IsActive {
			continue
		}
		if existing.LastActivityAt.Before(cutoff) {
			s.end(&existing, session.LoginAt, models.SessionEndExpired)
			continue
		}
		live++
	}
	if live >= limit {
		return live, repository.ErrDeviceLimitReached
	}

	session.IsActive = true
	session.EndedAt = nil
	session.EndReason = ""
	s.sessions[session.ID] = session
	if s.byUser[session.UserID] == nil {
		s.byUser[session.UserID] = make(map[string]struct{})
	}
	s.byUser[session.UserID][session.ID] = struct{}{}
	return live + 1, nil
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) ListLive(ctx context.Context, userID string, cutoff time.Time) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []models.Session
	for id := range s.byUser[userID] {
		session := s.sessions[id]
		if session.IsActive && !session.LastActivityAt.Before(cutoff) {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

func (s *SessionStore) CountLive(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	sessions, err := s.ListLive(ctx, userID, cutoff)
	return len(sessions), err
}

func (s *SessionStore) Touch(ctx context.Context, id string, at, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || !session.IsActive || session.LastActivityAt.Before(cutoff) {
		return false, nil
	}
	if at.After(session.LastActivityAt) {
		session.LastActivityAt = at
	}
	s.sessions[id] = session
	return true, nil
}

func (s *SessionStore) Deactivate(ctx context.Context, id string, at time.Time, reason models.SessionEndReason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || !session.IsActive {
		return false, nil
	}
	s.end(&session, at, reason)
	return true, nil
}

func (s *SessionStore) DeactivateByUser(ctx context.Context, userID string, at time.Time, reason models.SessionEndReason) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := 0
	for id := range s.byUser[userID] {
		session := s.sessions[id]
		if !session.IsActive {
			continue
		}
		s.end(&session, at, reason)
		ended++
	}
	return ended, nil
}

func (s *SessionStore) DeactivateIdle(ctx context.Context, cutoff time.Time, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended := 0
	for _, session := range s.sessions {
		if !session.IsActive || !session.LastActivityAt.Before(cutoff) {
			continue
		}
		s.end(&session, at, models.SessionEndExpired)
		ended++
	}
	return ended, nil
}

// end must be called with s.mu held.
func (s *SessionStore) end(session *models.Session, at time.Time, reason models.SessionEndReason) {
	session.IsActive = false
	session.EndedAt = &at
	session.EndReason = reason
	s.sessions[session.ID] = *session
}
