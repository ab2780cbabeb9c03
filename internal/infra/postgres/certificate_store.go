package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// CertificateStore records certificate eligibility once per (user, quiz).
// The primary key plus ON CONFLICT DO NOTHING makes Record an idempotent
// upsert: re-grading never yields a duplicate certificate row.
type CertificateStore struct {
	db *bun.DB
}

func NewCertificateStore(db *bun.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

type certificateRow struct {
	bun.BaseModel `bun:"table:certificates,alias:c"`

	UserID    string    `bun:"user_id,pk"`
	QuizID    string    `bun:"quiz_id,pk"`
	SessionID string    `bun:"session_id"`
	DecidedAt time.Time `bun:"decided_at"`
}

func (s *CertificateStore) Record(ctx context.Context, userID, quizID, sessionID string, decidedAt time.Time) (bool, error) {
	row := certificateRow{
		UserID:    userID,
		QuizID:    quizID,
		SessionID: sessionID,
		DecidedAt: decidedAt,
	}
	res, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, quiz_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("record certificate: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
