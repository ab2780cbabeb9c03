package grading

import (
	"fmt"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

// OpenEndedPolicy decides how free-text questions enter the score. There is
// no automatic correctness oracle for them, so the deployment picks one of
// three documented behaviors.
type OpenEndedPolicy string

const (
	// PolicyAutoZero records the answer, awards zero points, and says so in
	// the per-question explanation. This is the default.
	PolicyAutoZero OpenEndedPolicy = "autoZero"
	// PolicyExcludeFromScore removes open-ended questions from totalPoints
	// entirely; they do not move the percentage either way.
	PolicyExcludeFromScore OpenEndedPolicy = "excludeFromScore"
	// PolicyRequiresManualReview grades the rest automatically and marks the
	// result as needing human review before it is final.
	PolicyRequiresManualReview OpenEndedPolicy = "requiresManualReview"
)

// ParsePolicy maps a config string to a policy, defaulting to autoZero.
func ParsePolicy(raw string) OpenEndedPolicy {
	switch OpenEndedPolicy(raw) {
	case PolicyExcludeFromScore:
		return PolicyExcludeFromScore
	case PolicyRequiresManualReview:
		return PolicyRequiresManualReview
	default:
		return PolicyAutoZero
	}
}

// Engine computes grade results. It is pure: persistence of the result is
// the caller's job.
type Engine struct {
	policy OpenEndedPolicy
	clock  func() time.Time
}

func NewEngine(policy OpenEndedPolicy) *Engine {
	return &Engine{policy: policy, clock: time.Now}
}

// NewEngineWithClock is test-only for deterministic timestamps.
func NewEngineWithClock(policy OpenEndedPolicy, clock func() time.Time) *Engine {
	return &Engine{policy: policy, clock: clock}
}

// Grade walks the definition's question order, looks up each submitted
// answer (absent means zero points), and produces the weighted result.
// Score stays the exact rational 100*earned/total; a definition with zero
// total points grades to score 0.
func (e *Engine) Grade(session domain.QuizSession, def domain.QuizDefinition) domain.GradeResult {
	result := domain.GradeResult{
		SessionID: session.ID,
		Questions: make([]domain.QuestionResult, 0, len(def.Questions)),
		GradedAt:  e.clock(),
	}

	for _, q := range def.Questions {
		answer, answered := session.Answers[q.ID]
		qr := e.gradeQuestion(q, answer, answered)
		result.TotalPoints += qr.PointsPossible
		result.EarnedPoints += qr.PointsAwarded
		if qr.NeedsReview {
			result.NeedsReview = true
		}
		result.Questions = append(result.Questions, qr)
	}

	if result.TotalPoints > 0 {
		result.Score = 100 * float64(result.EarnedPoints) / float64(result.TotalPoints)
	}
	result.Passed = result.Score >= def.PassingScorePercent
	return result
}

func (e *Engine) gradeQuestion(q domain.Question, answer domain.Answer, answered bool) domain.QuestionResult {
	qr := domain.QuestionResult{
		QuestionID:     q.ID,
		Answered:       answered,
		PointsPossible: q.Weight(),
		Explanation:    q.Explanation,
	}

	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		if answered && answer.OptionIndex != nil && *answer.OptionIndex == q.CorrectAnswer {
			qr.Correct = true
			qr.PointsAwarded = q.Weight()
		}
	case domain.OpenEnded:
		switch e.policy {
		case PolicyExcludeFromScore:
			qr.PointsPossible = 0
			qr.Explanation = "Open-ended question; excluded from the automatic score."
		case PolicyRequiresManualReview:
			qr.NeedsReview = true
			qr.Explanation = "Open-ended question; pending manual review."
		default:
			qr.Explanation = "Open-ended answer recorded; not graded automatically."
		}
	}
	return qr
}

// ValidateAnswer checks a submitted value against its question before it is
// merged into a session. Unknown question ids and out-of-range option
// indexes are rejected here so they never reach the answer space.
func ValidateAnswer(def domain.QuizDefinition, questionID string, answer domain.Answer) error {
	q, ok := def.QuestionByID(questionID)
	if !ok {
		return fmt.Errorf("%w: unknown question %q", domain.ErrInvalidAnswer, questionID)
	}
	switch q.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		if answer.OptionIndex == nil {
			return fmt.Errorf("%w: question %q expects an option index", domain.ErrInvalidAnswer, questionID)
		}
		if *answer.OptionIndex < 0 || *answer.OptionIndex >= len(q.Options) {
			return fmt.Errorf("%w: option index %d out of range for question %q", domain.ErrInvalidAnswer, *answer.OptionIndex, questionID)
		}
	case domain.OpenEnded:
		if answer.OptionIndex != nil {
			return fmt.Errorf("%w: question %q expects text", domain.ErrInvalidAnswer, questionID)
		}
	}
	return nil
}
