package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"cybersafe-assessment-service/internal/domain"
)

// SessionStore persists quiz sessions in Postgres through bun. The guarded
// transitions are conditional UPDATEs (`... WHERE status = ?`), so the
// at-most-one-grading rule holds at the database, not in process memory.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:s"`

	ID            string    `bun:"id,pk"`
	UserID        string    `bun:"user_id"`
	QuizID        string    `bun:"quiz_id"`
	Status        string    `bun:"status"`
	AttemptNumber int       `bun:"attempt_number"`
	StartedAt     time.Time `bun:"started_at"`
	Deadline      time.Time `bun:"deadline,nullzero"`
	SubmittedAt   time.Time `bun:"submitted_at,nullzero"`
	ForcedSubmit  bool      `bun:"forced_submit"`
	Answers       []byte    `bun:"answers,type:jsonb"`
	Result        []byte    `bun:"result,type:jsonb,nullzero"`
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	answers, err := json.Marshal(session.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	row := sessionRow{
		ID:            session.ID,
		UserID:        session.UserID,
		QuizID:        session.QuizID,
		Status:        string(session.Status),
		AttemptNumber: session.AttemptNumber,
		StartedAt:     session.StartedAt,
		Deadline:      session.Deadline,
		Answers:       answers,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.QuizSession{}, domain.ErrSessionNotFound
		}
		return domain.QuizSession{}, fmt.Errorf("select session: %w", err)
	}
	return row.toDomain()
}

func (s *SessionStore) CountAttempts(ctx context.Context, userID, quizID string) (total, graded int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE status = 'graded') FROM quiz_sessions WHERE user_id = $1 AND quiz_id = $2`,
		userID, quizID).Scan(&total, &graded)
	if err != nil {
		return 0, 0, fmt.Errorf("count attempts: %w", err)
	}
	return total, graded, nil
}

func (s *SessionStore) RecordAnswers(ctx context.Context, sessionID string, answers map[string]domain.Answer) error {
	merged, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	// jsonb concatenation merges per key, so partial progress is kept.
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_sessions SET answers = answers || $1::jsonb WHERE id = $2 AND status = 'pending'`,
		string(merged), sessionID)
	if err != nil {
		return fmt.Errorf("record answers: %w", err)
	}
	return s.guardResult(ctx, res, sessionID)
}

func (s *SessionStore) Transition(ctx context.Context, sessionID string, from, to domain.SessionStatus) error {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("status = ?", string(to)).
		Where("id = ? AND status = ?", sessionID, string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	return s.guardResult(ctx, res, sessionID)
}

func (s *SessionStore) SaveResult(ctx context.Context, sessionID string, submittedAt time.Time, forced bool, result domain.GradeResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.StatusGraded)).
		Set("submitted_at = ?", submittedAt).
		Set("forced_submit = ?", forced).
		Set("result = ?", string(raw)).
		Where("id = ? AND status = ?", sessionID, string(domain.StatusSubmitted)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return s.guardResult(ctx, res, sessionID)
}

func (s *SessionStore) ExpireOverdue(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quiz_sessions SET status = 'expired' WHERE status = 'pending' AND deadline IS NOT NULL AND deadline < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// guardResult maps a zero-row conditional update to the right error: the
// session either vanished (never happens, sessions are not deleted) or is in
// a different state than the caller expected.
func (s *SessionStore) guardResult(ctx context.Context, res sql.Result, sessionID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrInvalidTransition
}

func (r sessionRow) toDomain() (domain.QuizSession, error) {
	session := domain.QuizSession{
		ID:            r.ID,
		UserID:        r.UserID,
		QuizID:        r.QuizID,
		Status:        domain.SessionStatus(r.Status),
		AttemptNumber: r.AttemptNumber,
		StartedAt:     r.StartedAt,
		Deadline:      r.Deadline,
		SubmittedAt:   r.SubmittedAt,
		ForcedSubmit:  r.ForcedSubmit,
		Answers:       map[string]domain.Answer{},
	}
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &session.Answers); err != nil {
			return domain.QuizSession{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(r.Result) > 0 {
		var result domain.GradeResult
		if err := json.Unmarshal(r.Result, &result); err != nil {
			return domain.QuizSession{}, fmt.Errorf("unmarshal result: %w", err)
		}
		session.Result = &result
	}
	return session, nil
}
