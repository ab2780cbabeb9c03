package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cybersafe-assessment-service/internal/domain"
	"cybersafe-assessment-service/internal/grading"
)

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// SessionRepository abstracts how quiz sessions are stored (in-memory,
// Postgres, etc). Transition and SaveResult must be guarded compare-and-set
// operations at the persistence layer: they fail with ErrInvalidTransition
// unless the session is in the expected state.
type SessionRepository interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, sessionID string) (domain.QuizSession, error)
	// CountAttempts returns how many sessions exist for (userID, quizID) and
	// how many of them reached graded.
	CountAttempts(ctx context.Context, userID, quizID string) (total, graded int, err error)
	// RecordAnswers merges (never replaces) answers into a pending session.
	RecordAnswers(ctx context.Context, sessionID string, answers map[string]domain.Answer) error
	// Transition moves status from->to only if the current status equals from.
	Transition(ctx context.Context, sessionID string, from, to domain.SessionStatus) error
	// SaveResult moves a submitted session to graded and persists the result
	// and submission metadata in one conditional update.
	SaveResult(ctx context.Context, sessionID string, submittedAt time.Time, forced bool, result domain.GradeResult) error
	// ExpireOverdue sweeps pending sessions whose deadline fell before cutoff.
	ExpireOverdue(ctx context.Context, cutoff time.Time) (int, error)
}

// AssessmentService contains the quiz assessment use cases: starting a
// session with a stripped question set, and submitting answers for a
// grade-exactly-once evaluation.
type AssessmentService struct {
	quizzes  QuizRepository
	sessions SessionRepository
	gate     *CertificateGate
	engine   *grading.Engine
	grace    time.Duration
	clock    func() time.Time
}

// Option tunes service construction.
type Option func(*AssessmentService)

// WithClock is test-only for deterministic timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *AssessmentService) { s.clock = clock }
}

// WithGrace sets the margin added to the server-side deadline so legitimate
// network latency never voids a submit.
func WithGrace(grace time.Duration) Option {
	return func(s *AssessmentService) { s.grace = grace }
}

func NewAssessmentService(quizzes QuizRepository, sessions SessionRepository, gate *CertificateGate, engine *grading.Engine, opts ...Option) *AssessmentService {
	s := &AssessmentService{
		quizzes:  quizzes,
		sessions: sessions,
		gate:     gate,
		engine:   engine,
		grace:    30 * time.Second,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the quiz, enforces the retry policy, creates a pending session
// and returns the answer-key-free view. Handing out questions and tracking
// the session are one operation from the caller's perspective: no view is
// returned unless the session record exists.
func (s *AssessmentService) Start(ctx context.Context, userID, quizID string) (domain.PublicQuizView, error) {
	def, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.PublicQuizView{}, err
	}
	if !def.Published {
		return domain.PublicQuizView{}, domain.ErrQuizNotFound
	}

	total, graded, err := s.sessions.CountAttempts(ctx, userID, quizID)
	if err != nil {
		return domain.PublicQuizView{}, err
	}
	if graded > 0 && !def.AllowRetries {
		return domain.PublicQuizView{}, domain.ErrRetryNotAllowed
	}

	now := s.clock()
	session := domain.QuizSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		QuizID:        quizID,
		Status:        domain.StatusPending,
		AttemptNumber: total + 1,
		StartedAt:     now,
		Answers:       map[string]domain.Answer{},
	}
	if deadline, ok := def.Deadline(now); ok {
		session.Deadline = deadline
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.PublicQuizView{}, err
	}
	return domain.PublicViewOf(def, session), nil
}

// Submit merges the final answers, transitions the session through
// submitted to graded, and returns the grade. A session that is already
// graded returns the stored result instead of recomputing; a concurrent
// submit racing this one observes the guarded transition failing and
// resolves to that same stored result.
func (s *AssessmentService) Submit(ctx context.Context, userID, sessionID string, answers map[string]domain.Answer) (domain.GradeResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.GradeResult{}, err
	}
	if session.UserID != userID {
		return domain.GradeResult{}, domain.ErrForbidden
	}
	switch session.Status {
	case domain.StatusGraded:
		if session.Result != nil {
			return *session.Result, nil
		}
		return domain.GradeResult{}, domain.ErrInvalidTransition
	case domain.StatusExpired:
		return domain.GradeResult{}, domain.ErrSessionExpired
	}

	def, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.GradeResult{}, err
	}

	for questionID, answer := range answers {
		if err := grading.ValidateAnswer(def, questionID, answer); err != nil {
			return domain.GradeResult{}, err
		}
	}
	if len(answers) > 0 {
		if err := s.sessions.RecordAnswers(ctx, sessionID, answers); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				// Lost the race to another submit; fall through to its result.
				return s.awaitGraded(ctx, sessionID)
			}
			return domain.GradeResult{}, err
		}
	}

	now := s.clock()
	forced := false
	if !session.Deadline.IsZero() && now.After(session.Deadline) {
		// The client countdown is advisory; the server clock decides. An
		// over-limit submit is graded as-is rather than rejected, so latency
		// never costs a learner their answers.
		forced = true
	}

	if err := s.sessions.Transition(ctx, sessionID, domain.StatusPending, domain.StatusSubmitted); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return s.awaitGraded(ctx, sessionID)
		}
		return domain.GradeResult{}, err
	}

	session, err = s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.GradeResult{}, err
	}

	result := s.engine.Grade(session, def)
	decision, err := s.gate.Evaluate(ctx, session, result, def)
	if err != nil {
		return domain.GradeResult{}, err
	}
	result.CertificateEligible = decision.Eligible

	if err := s.sessions.SaveResult(ctx, sessionID, now, forced, result); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return s.awaitGraded(ctx, sessionID)
		}
		return domain.GradeResult{}, err
	}
	return result, nil
}

// Session returns a session with its definition for callers that render
// progress (the watch feed). Ownership is enforced here as well.
func (s *AssessmentService) Session(ctx context.Context, userID, sessionID string) (domain.QuizSession, domain.QuizDefinition, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, domain.QuizDefinition{}, err
	}
	if session.UserID != userID {
		return domain.QuizSession{}, domain.QuizDefinition{}, domain.ErrForbidden
	}
	def, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.QuizSession{}, domain.QuizDefinition{}, err
	}
	return session, def, nil
}

// SweepExpired marks abandoned pending sessions past deadline+grace as
// expired. Meant to run periodically from the server loop.
func (s *AssessmentService) SweepExpired(ctx context.Context) (int, error) {
	return s.sessions.ExpireOverdue(ctx, s.clock().Add(-s.grace))
}

// awaitGraded is the loser's side of a submit race: the winner is grading,
// so poll briefly for its stored result instead of erroring destructively.
func (s *AssessmentService) awaitGraded(ctx context.Context, sessionID string) (domain.GradeResult, error) {
	for i := 0; i < 20; i++ {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.GradeResult{}, err
		}
		if session.Status == domain.StatusGraded && session.Result != nil {
			return *session.Result, nil
		}
		if session.Status == domain.StatusExpired {
			return domain.GradeResult{}, domain.ErrSessionExpired
		}
		select {
		case <-ctx.Done():
			return domain.GradeResult{}, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	return domain.GradeResult{}, domain.ErrInvalidTransition
}
