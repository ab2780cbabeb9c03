package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

type fakeAPI struct {
	view      domain.PublicQuizView
	startErr  error
	submitErr error
	result    domain.GradeResult

	starts      int
	submissions []map[string]domain.Answer
}

func (f *fakeAPI) Start(_ context.Context, quizID string) (domain.PublicQuizView, error) {
	f.starts++
	if f.startErr != nil {
		return domain.PublicQuizView{}, f.startErr
	}
	view := f.view
	view.AttemptNumber = f.starts
	return view, nil
}

func (f *fakeAPI) Submit(_ context.Context, _ string, answers map[string]domain.Answer) (domain.GradeResult, error) {
	copied := make(map[string]domain.Answer, len(answers))
	for id, a := range answers {
		copied[id] = a
	}
	f.submissions = append(f.submissions, copied)
	if f.submitErr != nil {
		return domain.GradeResult{}, f.submitErr
	}
	return f.result, nil
}

func threeQuestionView() domain.PublicQuizView {
	return domain.PublicQuizView{
		SessionID:        "s1",
		QuizID:           "quiz-1",
		Title:            "Safe Browsing",
		TimeLimitMinutes: 10,
		AllowRetries:     true,
		Questions: []domain.PublicQuestion{
			{ID: "q1", Type: domain.MultipleChoice, Options: []string{"a", "b", "c"}, Points: 5},
			{ID: "q2", Type: domain.TrueFalse, Options: []string{"True", "False"}, Points: 5},
			{ID: "q3", Type: domain.OpenEnded, Points: 2},
		},
	}
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func newTestController(api API) (*Controller, *manualClock) {
	clock := &manualClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	return NewController(api, WithClock(clock.Now)), clock
}

func TestBeginArmsCountdownAndUnsetAnswers(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView()}
	ctrl, _ := newTestController(api)

	if err := ctrl.Begin(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if ctrl.State() != StateActive {
		t.Fatalf("expected active, got %s", ctrl.State())
	}
	if ctrl.CurrentIndex() != 0 {
		t.Fatalf("should start at the first question")
	}
	for _, q := range ctrl.View().Questions {
		if _, answered := ctrl.AnswerFor(q.ID); answered {
			t.Fatalf("question %s should start unset", q.ID)
		}
	}
	remaining, ok := ctrl.Remaining()
	if !ok || remaining != 10*time.Minute {
		t.Fatalf("expected 10m countdown, got %v ok=%v", remaining, ok)
	}
	if got := ctrl.Unanswered(); len(got) != 3 {
		t.Fatalf("all questions unanswered at start, got %v", got)
	}
}

func TestNavigationAndLocalAnswers(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView()}
	ctrl, _ := newTestController(api)
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := ctrl.SelectOption(2); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := ctrl.SelectOption(3); err == nil {
		t.Fatalf("out of range option must fail")
	}

	if last, err := ctrl.Next(); err != nil || last {
		t.Fatalf("next: last=%v err=%v", last, err)
	}
	if err := ctrl.SetText("hello"); err == nil {
		t.Fatalf("text answer on a choice question must fail")
	}

	if err := ctrl.GoTo(2); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := ctrl.SetText("report to IT"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if err := ctrl.SelectOption(0); err == nil {
		t.Fatalf("option on an open-ended question must fail")
	}
	if last, err := ctrl.Next(); err != nil || !last {
		t.Fatalf("expected last question, got last=%v err=%v", last, err)
	}
	if err := ctrl.Prev(); err != nil {
		t.Fatalf("prev: %v", err)
	}
	if ctrl.CurrentIndex() != 1 {
		t.Fatalf("expected index 1, got %d", ctrl.CurrentIndex())
	}

	// Answer changes overwrite, no appends.
	if err := ctrl.GoTo(0); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := ctrl.SelectOption(1); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	answer, answered := ctrl.AnswerFor("q1")
	if !answered || answer.OptionIndex == nil || *answer.OptionIndex != 1 {
		t.Fatalf("expected reselected option 1, got %+v", answer)
	}

	unanswered := ctrl.Unanswered()
	if len(unanswered) != 1 || unanswered[0] != "q2" {
		t.Fatalf("expected only q2 unanswered, got %v", unanswered)
	}
}

func TestSubmitConfirmCancelStaysActive(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView()}
	confirmed := false
	ctrl, _ := newTestController(api)
	ctrl.confirm = func(unanswered []string) bool {
		confirmed = true
		if len(unanswered) != 3 {
			t.Fatalf("confirm should list all unanswered, got %v", unanswered)
		}
		return false
	}
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("cancelled submit should not error: %v", err)
	}
	if !confirmed {
		t.Fatalf("confirmation step did not run")
	}
	if ctrl.State() != StateActive {
		t.Fatalf("cancel must keep the session active, got %s", ctrl.State())
	}
	if len(api.submissions) != 0 {
		t.Fatalf("cancel must not reach the network")
	}
}

func TestSubmitSendsOnlyAnsweredQuestions(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView(), result: domain.GradeResult{Score: 50, Passed: true}}
	ctrl, _ := newTestController(api)
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ctrl.SelectOption(0); err != nil {
		t.Fatalf("select: %v", err)
	}

	// No confirm installed, unanswered questions submit straight through.
	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ctrl.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", ctrl.State())
	}
	if len(api.submissions) != 1 {
		t.Fatalf("expected one submission, got %d", len(api.submissions))
	}
	payload := api.submissions[0]
	if len(payload) != 1 {
		t.Fatalf("unanswered questions must be absent from the payload, got %v", payload)
	}
	if answer := payload["q1"]; answer.OptionIndex == nil || *answer.OptionIndex != 0 {
		t.Fatalf("wrong payload answer: %+v", answer)
	}
	if ctrl.Result() == nil || ctrl.Result().Score != 50 {
		t.Fatalf("result not recorded: %+v", ctrl.Result())
	}
}

func TestTimeoutForcesSubmitWithoutConfirmation(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView(), result: domain.GradeResult{Score: 0}}
	ctrl, clock := newTestController(api)
	ctrl.confirm = func([]string) bool {
		t.Fatalf("forced submit must skip the confirmation step")
		return false
	}
	var lastRemaining time.Duration
	ctrl.onTick = func(remaining time.Duration) { lastRemaining = remaining }

	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	clock.now = clock.now.Add(5 * time.Minute)
	if err := ctrl.Tick(ctx); err != nil {
		t.Fatalf("mid-countdown tick: %v", err)
	}
	if ctrl.State() != StateActive || len(api.submissions) != 0 {
		t.Fatalf("tick before zero must not submit")
	}
	if lastRemaining != 5*time.Minute {
		t.Fatalf("onTick remaining wrong: %v", lastRemaining)
	}

	clock.now = clock.now.Add(6 * time.Minute)
	if err := ctrl.Tick(ctx); err != nil {
		t.Fatalf("timeout tick: %v", err)
	}
	if ctrl.State() != StateCompleted {
		t.Fatalf("timeout must submit and complete, got %s", ctrl.State())
	}
	if len(api.submissions) != 1 || len(api.submissions[0]) != 0 {
		t.Fatalf("forced submit sends the answers so far (none): %v", api.submissions)
	}
}

func TestSubmitFailureKeepsAnswersForRetry(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView(), submitErr: errors.New("connection refused")}
	ctrl, _ := newTestController(api)
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ctrl.SelectOption(1); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := ctrl.Submit(ctx); err == nil {
		t.Fatalf("expected network failure")
	}
	if ctrl.State() != StateActive {
		t.Fatalf("failure must return to active, got %s", ctrl.State())
	}
	if ctrl.Err() == nil {
		t.Fatalf("last error should be recorded")
	}
	if answer, answered := ctrl.AnswerFor("q1"); !answered || *answer.OptionIndex != 1 {
		t.Fatalf("answers must survive the failure, got %+v", answer)
	}

	api.submitErr = nil
	api.result = domain.GradeResult{Score: 100, Passed: true}
	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("retried submit: %v", err)
	}
	if ctrl.State() != StateCompleted || ctrl.Err() != nil {
		t.Fatalf("retry should complete cleanly, state=%s err=%v", ctrl.State(), ctrl.Err())
	}
	if got := api.submissions[len(api.submissions)-1]; len(got) != 1 {
		t.Fatalf("retried payload should carry the kept answer, got %v", got)
	}
}

func TestSubmitInFlightDebounce(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView()}
	ctrl, _ := newTestController(api)
	if err := ctrl.Begin(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	ctrl.inFlight = true
	if err := ctrl.submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected in-flight debounce, got %v", err)
	}
	if len(api.submissions) != 0 {
		t.Fatalf("debounced submit must not reach the network")
	}
}

func TestRetryStartsFreshAttempt(t *testing.T) {
	api := &fakeAPI{view: threeQuestionView(), result: domain.GradeResult{Score: 0}}
	ctrl, _ := newTestController(api)
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ctrl.SelectOption(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := ctrl.Retry(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ctrl.State() != StateActive {
		t.Fatalf("retry should re-enter active, got %s", ctrl.State())
	}
	if ctrl.View().AttemptNumber != 2 {
		t.Fatalf("expected attempt 2, got %d", ctrl.View().AttemptNumber)
	}
	if ctrl.Result() != nil {
		t.Fatalf("previous result must be cleared")
	}
	if _, answered := ctrl.AnswerFor("q1"); answered {
		t.Fatalf("answers must reset on retry")
	}
}

func TestRetryRejectedWhenDisallowed(t *testing.T) {
	view := threeQuestionView()
	view.AllowRetries = false
	api := &fakeAPI{view: view, result: domain.GradeResult{}}
	ctrl, _ := newTestController(api)
	ctx := context.Background()
	if err := ctrl.Begin(ctx, "quiz-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := ctrl.Retry(ctx); err == nil {
		t.Fatalf("retry before completion must fail")
	}
	if err := ctrl.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := ctrl.Retry(ctx); !errors.Is(err, domain.ErrRetryNotAllowed) {
		t.Fatalf("expected retry not allowed, got %v", err)
	}
}
