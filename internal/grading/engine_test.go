package grading

import (
	"errors"
	"testing"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

func twoChoiceQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:                  "quiz-1",
		PassingScorePercent: 50,
		Published:           true,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.MultipleChoice, Options: []string{"a", "b", "c"}, Points: 5, CorrectAnswer: 1},
			{ID: "q2", Type: domain.MultipleChoice, Options: []string{"a", "b"}, Points: 5, CorrectAnswer: 0},
		},
	}
}

func TestGradeHalfCorrectIsExactBoundaryPass(t *testing.T) {
	engine := NewEngineWithClock(PolicyAutoZero, fixedNow)
	session := domain.QuizSession{
		ID:      "s1",
		Answers: map[string]domain.Answer{"q1": domain.ChoiceAnswer(1)},
	}

	result := engine.Grade(session, twoChoiceQuiz())

	if result.EarnedPoints != 5 || result.TotalPoints != 10 {
		t.Fatalf("expected 5/10 points, got %d/%d", result.EarnedPoints, result.TotalPoints)
	}
	if result.Score != 50 {
		t.Fatalf("expected exact score 50, got %v", result.Score)
	}
	if !result.Passed {
		t.Fatalf("score equal to passing threshold must pass")
	}
}

func TestGradeEmptyAnswersScoresZero(t *testing.T) {
	engine := NewEngineWithClock(PolicyAutoZero, fixedNow)
	session := domain.QuizSession{ID: "s1", Answers: map[string]domain.Answer{}}

	result := engine.Grade(session, twoChoiceQuiz())

	if result.Score != 0 || result.Passed {
		t.Fatalf("expected score 0 and failed, got score=%v passed=%v", result.Score, result.Passed)
	}
	for _, qr := range result.Questions {
		if qr.Answered || qr.Correct || qr.PointsAwarded != 0 {
			t.Fatalf("unanswered question graded wrong: %+v", qr)
		}
	}
}

func TestGradeZeroTotalPointsDegenerate(t *testing.T) {
	engine := NewEngineWithClock(PolicyExcludeFromScore, fixedNow)
	def := domain.QuizDefinition{
		PassingScorePercent: 50,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.OpenEnded, Points: 3},
		},
	}
	session := domain.QuizSession{Answers: map[string]domain.Answer{"q1": domain.TextAnswer("something")}}

	result := engine.Grade(session, def)
	if result.TotalPoints != 0 {
		t.Fatalf("excluded open-ended should leave totalPoints 0, got %d", result.TotalPoints)
	}
	if result.Score != 0 {
		t.Fatalf("zero total points must grade to score 0, got %v", result.Score)
	}
}

func TestOpenEndedPolicies(t *testing.T) {
	def := domain.QuizDefinition{
		PassingScorePercent: 50,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.MultipleChoice, Options: []string{"a", "b"}, Points: 5, CorrectAnswer: 0},
			{ID: "q2", Type: domain.OpenEnded, Points: 5},
		},
	}
	session := domain.QuizSession{Answers: map[string]domain.Answer{
		"q1": domain.ChoiceAnswer(0),
		"q2": domain.TextAnswer("free text"),
	}}

	autoZero := NewEngineWithClock(PolicyAutoZero, fixedNow).Grade(session, def)
	if autoZero.TotalPoints != 10 || autoZero.EarnedPoints != 5 || autoZero.NeedsReview {
		t.Fatalf("autoZero: got %+v", autoZero)
	}
	if autoZero.Questions[1].Explanation == "" {
		t.Fatalf("autoZero must explain the zero to the learner")
	}

	excluded := NewEngineWithClock(PolicyExcludeFromScore, fixedNow).Grade(session, def)
	if excluded.TotalPoints != 5 || excluded.Score != 100 {
		t.Fatalf("excludeFromScore: expected 5/5 => 100, got %d total score %v", excluded.TotalPoints, excluded.Score)
	}

	review := NewEngineWithClock(PolicyRequiresManualReview, fixedNow).Grade(session, def)
	if !review.NeedsReview || !review.Questions[1].NeedsReview {
		t.Fatalf("requiresManualReview must flag the result, got %+v", review)
	}
}

func TestGradeWeightedScoreIsExactRational(t *testing.T) {
	def := domain.QuizDefinition{
		PassingScorePercent: 60,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.TrueFalse, Options: []string{"True", "False"}, Points: 1, CorrectAnswer: 0},
			{ID: "q2", Type: domain.MultipleChoice, Options: []string{"a", "b"}, Points: 2, CorrectAnswer: 1},
		},
	}
	session := domain.QuizSession{Answers: map[string]domain.Answer{"q1": domain.ChoiceAnswer(0)}}

	result := NewEngineWithClock(PolicyAutoZero, fixedNow).Grade(session, def)
	want := 100 * float64(1) / float64(3)
	if result.Score != want {
		t.Fatalf("expected exact rational %v, got %v", want, result.Score)
	}
	if result.Passed {
		t.Fatalf("33.3%% must not pass a 60%% threshold")
	}
}

func TestValidateAnswer(t *testing.T) {
	def := domain.QuizDefinition{
		Questions: []domain.Question{
			{ID: "q1", Type: domain.MultipleChoice, Options: []string{"a", "b"}},
			{ID: "q2", Type: domain.OpenEnded},
		},
	}

	if err := ValidateAnswer(def, "q1", domain.ChoiceAnswer(1)); err != nil {
		t.Fatalf("valid index rejected: %v", err)
	}
	if err := ValidateAnswer(def, "q1", domain.ChoiceAnswer(2)); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("out of range index must fail validation, got %v", err)
	}
	if err := ValidateAnswer(def, "q1", domain.TextAnswer("nope")); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("text answer to a choice question must fail, got %v", err)
	}
	if err := ValidateAnswer(def, "q2", domain.ChoiceAnswer(0)); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("index answer to an open-ended question must fail, got %v", err)
	}
	if err := ValidateAnswer(def, "missing", domain.TextAnswer("x")); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("unknown question must fail, got %v", err)
	}
}
