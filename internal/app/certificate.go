package app

import (
	"context"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

// CertificateStore records eligibility exactly once per (userID, quizID).
// Record must be an idempotent upsert: created is false when the pair was
// already recorded, and re-recording never produces a duplicate.
type CertificateStore interface {
	Record(ctx context.Context, userID, quizID, sessionID string, decidedAt time.Time) (created bool, err error)
}

// CertificateGate decides whether a completion certificate becomes issuable.
// Generating the actual document is an external concern.
type CertificateGate struct {
	store CertificateStore
	clock func() time.Time
}

func NewCertificateGate(store CertificateStore) *CertificateGate {
	return &CertificateGate{store: store, clock: time.Now}
}

// NewCertificateGateWithClock is test-only for deterministic timestamps.
func NewCertificateGateWithClock(store CertificateStore, clock func() time.Time) *CertificateGate {
	return &CertificateGate{store: store, clock: clock}
}

// Evaluate applies the gate rule: eligible iff the attempt passed and the
// quiz's configuration enables certificates. An eligible decision is
// recorded; re-evaluating a pair that already holds a certificate reports
// AlreadyRecorded instead of writing a second record.
func (g *CertificateGate) Evaluate(ctx context.Context, session domain.QuizSession, result domain.GradeResult, def domain.QuizDefinition) (domain.CertificateDecision, error) {
	decision := domain.CertificateDecision{
		UserID:    session.UserID,
		QuizID:    session.QuizID,
		SessionID: session.ID,
		Eligible:  result.Passed && def.CertificateEnabled,
		DecidedAt: g.clock(),
	}
	if !decision.Eligible {
		return decision, nil
	}
	created, err := g.store.Record(ctx, session.UserID, session.QuizID, session.ID, decision.DecidedAt)
	if err != nil {
		return domain.CertificateDecision{}, err
	}
	decision.AlreadyRecorded = !created
	return decision, nil
}
