package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// QuestionType discriminates how a question is answered and graded.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	OpenEnded      QuestionType = "open-ended"
)

// Question is the server-internal form of a quiz question. CorrectAnswer and
// Explanation never leave the server; clients only ever see PublicQuestion.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"` // empty for open-ended
	Points        int          `json:"points"`            // defaults to 1 if zero
	CorrectAnswer int          `json:"correctAnswer"`     // option index; unused for open-ended
	Explanation   string       `json:"explanation,omitempty"`
}

// Weight returns the question's point weight, treating zero as 1.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// QuizDefinition is the immutable content of one quiz, owned by the
// content-authoring side; this service only reads it.
type QuizDefinition struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Questions           []Question `json:"questions"`
	TimeLimitMinutes    int        `json:"timeLimitMinutes"` // 0 = untimed
	PassingScorePercent float64    `json:"passingScorePercent"`
	AllowRetries        bool       `json:"allowRetries"`
	CertificateEnabled  bool       `json:"certificateEnabled"`
	Published           bool       `json:"published"`
}

// Timed reports whether the quiz runs under a countdown.
func (d QuizDefinition) Timed() bool { return d.TimeLimitMinutes > 0 }

// Deadline returns the instant the attempt time runs out. ok is false for
// untimed quizzes.
func (d QuizDefinition) Deadline(startedAt time.Time) (deadline time.Time, ok bool) {
	if !d.Timed() {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(d.TimeLimitMinutes) * time.Minute), true
}

// QuestionByID finds a question in the definition.
func (d QuizDefinition) QuestionByID(id string) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// PublicQuestion is the client-facing projection of Question. Keeping it a
// distinct type makes the answer-key boundary a compile-time guarantee
// instead of an ad hoc field deletion.
type PublicQuestion struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
}

// PublicQuizView is what a learner receives when starting a quiz: the
// stripped question set plus the metadata of the freshly created session.
type PublicQuizView struct {
	SessionID           string           `json:"sessionId"`
	QuizID              string           `json:"quizId"`
	Title               string           `json:"title"`
	Questions           []PublicQuestion `json:"questions"`
	TimeLimitMinutes    int              `json:"timeLimitMinutes"`
	PassingScorePercent float64          `json:"passingScorePercent"`
	AllowRetries        bool             `json:"allowRetries"`
	AttemptNumber       int              `json:"attemptNumber"`
	StartedAt           time.Time        `json:"startedAt"`
}

// PublicViewOf maps a definition and its session into the client projection.
func PublicViewOf(def QuizDefinition, session QuizSession) PublicQuizView {
	questions := make([]PublicQuestion, 0, len(def.Questions))
	for _, q := range def.Questions {
		questions = append(questions, PublicQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Options: q.Options,
			Points:  q.Weight(),
		})
	}
	return PublicQuizView{
		SessionID:           session.ID,
		QuizID:              def.ID,
		Title:               def.Title,
		Questions:           questions,
		TimeLimitMinutes:    def.TimeLimitMinutes,
		PassingScorePercent: def.PassingScorePercent,
		AllowRetries:        def.AllowRetries,
		AttemptNumber:       session.AttemptNumber,
		StartedAt:           session.StartedAt,
	}
}

// Answer is one submitted value. Choice questions carry an option index,
// open-ended questions carry text; on the wire it is a bare number or string.
type Answer struct {
	OptionIndex *int
	Text        string
}

// ChoiceAnswer builds an option-index answer.
func ChoiceAnswer(index int) Answer { return Answer{OptionIndex: &index} }

// TextAnswer builds an open-ended answer.
func TextAnswer(text string) Answer { return Answer{Text: text} }

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.OptionIndex != nil {
		return json.Marshal(*a.OptionIndex)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var index int
	if err := json.Unmarshal(data, &index); err == nil {
		a.OptionIndex = &index
		a.Text = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		a.OptionIndex = nil
		a.Text = text
		return nil
	}
	return errors.New("answer must be an option index or a string")
}

// SessionStatus is the lifecycle state of a quiz attempt. Transitions are
// monotonic: pending -> submitted -> graded, or pending -> expired.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusSubmitted SessionStatus = "submitted"
	StatusGraded    SessionStatus = "graded"
	StatusExpired   SessionStatus = "expired"
)

// QuizSession is one tracked attempt by one user at one quiz. Sessions are
// never deleted; graded ones are the audit trail behind statistics.
type QuizSession struct {
	ID            string            `json:"sessionId"`
	UserID        string            `json:"userId"`
	QuizID        string            `json:"quizId"`
	Status        SessionStatus     `json:"status"`
	AttemptNumber int               `json:"attemptNumber"`
	StartedAt     time.Time         `json:"startedAt"`
	Deadline      time.Time         `json:"deadline,omitempty"` // zero for untimed quizzes
	SubmittedAt   time.Time         `json:"submittedAt,omitempty"`
	ForcedSubmit  bool              `json:"forcedSubmit,omitempty"`
	Answers       map[string]Answer `json:"answers"`
	Result        *GradeResult      `json:"result,omitempty"`
}

// QuestionResult is the per-question line of a grade breakdown.
type QuestionResult struct {
	QuestionID     string `json:"questionId"`
	Answered       bool   `json:"answered"`
	Correct        bool   `json:"correct"`
	PointsAwarded  int    `json:"pointsAwarded"`
	PointsPossible int    `json:"pointsPossible"`
	NeedsReview    bool   `json:"needsReview,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
}

// GradeResult materializes the graded state of a session. Score is the exact
// rational 100*earned/total; only presentation layers round it.
type GradeResult struct {
	SessionID           string           `json:"sessionId"`
	Score               float64          `json:"score"`
	EarnedPoints        int              `json:"earnedPoints"`
	TotalPoints         int              `json:"totalPoints"`
	Passed              bool             `json:"passed"`
	NeedsReview         bool             `json:"needsReview,omitempty"`
	CertificateEligible bool             `json:"certificateEligible"`
	Questions           []QuestionResult `json:"questions"`
	GradedAt            time.Time        `json:"gradedAt"`
}

// CertificateDecision records whether a completion certificate may be issued
// for a (user, quiz) pair. Document generation happens elsewhere.
type CertificateDecision struct {
	UserID          string    `json:"userId"`
	QuizID          string    `json:"quizId"`
	SessionID       string    `json:"sessionId"`
	Eligible        bool      `json:"eligible"`
	AlreadyRecorded bool      `json:"alreadyRecorded,omitempty"`
	DecidedAt       time.Time `json:"decidedAt"`
}
