package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// All guarded updates happen under one mutex, which makes the
// compare-and-set semantics trivially atomic.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.QuizSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.QuizSession),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if session.Answers == nil {
		session.Answers = map[string]domain.Answer{}
	}
	s.sessions[session.ID] = &session
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) CountAttempts(_ context.Context, userID, quizID string) (total, graded int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.UserID != userID || session.QuizID != quizID {
			continue
		}
		total++
		if session.Status == domain.StatusGraded {
			graded++
		}
	}
	return total, graded, nil
}

func (s *SessionStore) RecordAnswers(_ context.Context, sessionID string, answers map[string]domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	// Merge, never replace: partial progress from a reconnect survives.
	for questionID, answer := range answers {
		session.Answers[questionID] = answer
	}
	return nil
}

func (s *SessionStore) Transition(_ context.Context, sessionID string, from, to domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != from {
		return domain.ErrInvalidTransition
	}
	session.Status = to
	return nil
}

func (s *SessionStore) SaveResult(_ context.Context, sessionID string, submittedAt time.Time, forced bool, result domain.GradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusSubmitted {
		return domain.ErrInvalidTransition
	}
	session.Status = domain.StatusGraded
	session.SubmittedAt = submittedAt
	session.ForcedSubmit = forced
	resultCopy := result
	session.Result = &resultCopy
	return nil
}

func (s *SessionStore) ExpireOverdue(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for _, session := range s.sessions {
		if session.Status != domain.StatusPending || session.Deadline.IsZero() {
			continue
		}
		if session.Deadline.Before(cutoff) {
			session.Status = domain.StatusExpired
			expired++
		}
	}
	return expired, nil
}

func cloneSession(session *domain.QuizSession) domain.QuizSession {
	out := *session
	out.Answers = make(map[string]domain.Answer, len(session.Answers))
	for questionID, answer := range session.Answers {
		out.Answers[questionID] = answer
	}
	if session.Result != nil {
		result := *session.Result
		out.Result = &result
	}
	return out
}
