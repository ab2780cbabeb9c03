// Package client implements the learner-side assessment controller: a
// single-goroutine, event-driven state machine that renders one question at
// a time, tracks answers locally, and submits either on learner action or
// when the countdown runs out. The countdown here is advisory; the server
// independently enforces the deadline on submit.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cybersafe-assessment-service/internal/domain"
)

// State is the controller's lifecycle position.
type State int

const (
	StateLoading State = iota
	StateActive
	StateSubmitting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// API is the server surface the controller drives. HTTPClient is the real
// implementation; tests plug in fakes.
type API interface {
	Start(ctx context.Context, quizID string) (domain.PublicQuizView, error)
	Submit(ctx context.Context, sessionID string, answers map[string]domain.Answer) (domain.GradeResult, error)
}

var (
	// ErrNotActive is returned for navigation or answering outside active state.
	ErrNotActive = errors.New("assessment is not active")
	// ErrSubmitInFlight is returned when a submission is already running.
	ErrSubmitInFlight = errors.New("submission already in flight")
)

// Controller is NOT safe for concurrent use: drive it from one goroutine
// (timer ticks and user input interleaved), matching the event-driven model
// of the UI it stands in for.
type Controller struct {
	api     API
	clock   func() time.Time
	confirm func(unanswered []string) bool
	onTick  func(remaining time.Duration)

	state    State
	view     domain.PublicQuizView
	current  int
	answers  map[string]domain.Answer
	deadline time.Time // zero when untimed
	inFlight bool
	lastErr  error
	result   *domain.GradeResult
}

// Option tunes controller construction.
type Option func(*Controller)

// WithClock is test-only for deterministic countdowns.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithConfirm installs the unanswered-questions confirmation step used
// before a manual submit. Returning false cancels and stays active. Without
// one, manual submits proceed unconditionally.
func WithConfirm(confirm func(unanswered []string) bool) Option {
	return func(c *Controller) { c.confirm = confirm }
}

// WithTickFunc installs a per-second countdown callback for rendering.
func WithTickFunc(onTick func(remaining time.Duration)) Option {
	return func(c *Controller) { c.onTick = onTick }
}

func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:   api,
		clock: time.Now,
		state: StateLoading,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts (or restarts) the assessment: loads the public view, creates
// the local answer map with one unset entry per question, and arms the
// countdown.
func (c *Controller) Begin(ctx context.Context, quizID string) error {
	c.state = StateLoading
	c.result = nil
	c.lastErr = nil
	c.inFlight = false

	view, err := c.api.Start(ctx, quizID)
	if err != nil {
		c.lastErr = err
		return err
	}

	c.view = view
	c.current = 0
	c.answers = make(map[string]domain.Answer, len(view.Questions))
	for _, q := range view.Questions {
		// Unset defaults: nil option index for choice types, empty text for
		// open-ended. Both are distinguishable from any valid answer.
		c.answers[q.ID] = domain.Answer{}
	}
	c.deadline = time.Time{}
	if view.TimeLimitMinutes > 0 {
		c.deadline = c.clock().Add(time.Duration(view.TimeLimitMinutes) * time.Minute)
	}
	c.state = StateActive
	return nil
}

// State reports the current lifecycle state.
func (c *Controller) State() State { return c.state }

// View returns the loaded quiz view.
func (c *Controller) View() domain.PublicQuizView { return c.view }

// Result returns the grade once completed.
func (c *Controller) Result() *domain.GradeResult { return c.result }

// Err returns the last submission error, if any.
func (c *Controller) Err() error { return c.lastErr }

// CurrentIndex returns the index of the question being shown.
func (c *Controller) CurrentIndex() int { return c.current }

// CurrentQuestion returns the question being shown.
func (c *Controller) CurrentQuestion() domain.PublicQuestion {
	return c.view.Questions[c.current]
}

// GoTo jumps to any question; navigation is random access, not sequential.
func (c *Controller) GoTo(index int) error {
	if c.state != StateActive {
		return ErrNotActive
	}
	if index < 0 || index >= len(c.view.Questions) {
		return fmt.Errorf("question index %d out of range", index)
	}
	c.current = index
	return nil
}

// Next advances to the following question, reporting whether the current
// one was the last.
func (c *Controller) Next() (last bool, err error) {
	if c.state != StateActive {
		return false, ErrNotActive
	}
	if c.current >= len(c.view.Questions)-1 {
		return true, nil
	}
	c.current++
	return false, nil
}

// Prev moves one question back, stopping at the first.
func (c *Controller) Prev() error {
	if c.state != StateActive {
		return ErrNotActive
	}
	if c.current > 0 {
		c.current--
	}
	return nil
}

// SelectOption records a choice answer for the current question. Purely
// local: no network traffic per selection.
func (c *Controller) SelectOption(index int) error {
	if c.state != StateActive {
		return ErrNotActive
	}
	q := c.CurrentQuestion()
	if q.Type == domain.OpenEnded {
		return fmt.Errorf("question %q expects a text answer", q.ID)
	}
	if index < 0 || index >= len(q.Options) {
		return fmt.Errorf("option index %d out of range", index)
	}
	c.answers[q.ID] = domain.ChoiceAnswer(index)
	return nil
}

// SetText records an open-ended answer for the current question.
func (c *Controller) SetText(text string) error {
	if c.state != StateActive {
		return ErrNotActive
	}
	q := c.CurrentQuestion()
	if q.Type != domain.OpenEnded {
		return fmt.Errorf("question %q expects an option selection", q.ID)
	}
	c.answers[q.ID] = domain.TextAnswer(text)
	return nil
}

// AnswerFor returns the locally recorded answer and whether it is set.
func (c *Controller) AnswerFor(questionID string) (domain.Answer, bool) {
	answer := c.answers[questionID]
	return answer, answerSet(answer)
}

// Unanswered lists question ids still at their unset default, in quiz order.
func (c *Controller) Unanswered() []string {
	var unanswered []string
	for _, q := range c.view.Questions {
		if !answerSet(c.answers[q.ID]) {
			unanswered = append(unanswered, q.ID)
		}
	}
	return unanswered
}

// Remaining returns the time left on the local countdown; ok is false for
// untimed quizzes.
func (c *Controller) Remaining() (remaining time.Duration, ok bool) {
	if c.deadline.IsZero() {
		return 0, false
	}
	remaining = c.deadline.Sub(c.clock())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Tick advances the countdown by observing the clock. When it hits zero in
// active state the controller force-submits the best answers so far,
// skipping the confirmation step. Call it about once per second.
func (c *Controller) Tick(ctx context.Context) error {
	remaining, timed := c.Remaining()
	if timed && c.onTick != nil {
		c.onTick(remaining)
	}
	if !timed || c.state != StateActive || remaining > 0 {
		return nil
	}
	// Timeout fires the forced submit: best answers so far, no confirmation.
	return c.submit(ctx)
}

// Submit is the explicit learner action. If questions remain unanswered the
// confirmation step runs first; cancelling keeps the session active with
// all local answers intact.
func (c *Controller) Submit(ctx context.Context) error {
	if c.state != StateActive {
		return ErrNotActive
	}
	if unanswered := c.Unanswered(); len(unanswered) > 0 && c.confirm != nil {
		if !c.confirm(unanswered) {
			return nil
		}
	}
	return c.submit(ctx)
}

func (c *Controller) submit(ctx context.Context) error {
	if c.inFlight {
		// UX debounce only; the server's guarded transition is the real
		// double-submission protection.
		return ErrSubmitInFlight
	}
	c.inFlight = true
	c.state = StateSubmitting

	payload := make(map[string]domain.Answer, len(c.answers))
	for questionID, answer := range c.answers {
		if answerSet(answer) {
			payload[questionID] = answer
		}
	}

	result, err := c.api.Submit(ctx, c.view.SessionID, payload)
	c.inFlight = false
	if err != nil {
		// Answers stay in local memory; the learner (or the next forced
		// tick) can retry the submission.
		c.lastErr = err
		c.state = StateActive
		return err
	}
	c.lastErr = nil
	c.result = &result
	c.state = StateCompleted
	return nil
}

// Retry restarts the whole state machine with a fresh session. Only valid
// after completion of a quiz that allows retries.
func (c *Controller) Retry(ctx context.Context) error {
	if c.state != StateCompleted {
		return fmt.Errorf("retry requires a completed assessment")
	}
	if !c.view.AllowRetries {
		return domain.ErrRetryNotAllowed
	}
	return c.Begin(ctx, c.view.QuizID)
}

// Run drives the countdown with a real ticker until the assessment
// completes or ctx is cancelled. Interactive front ends that own their own
// event loop call Tick directly instead.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil && !errors.Is(err, ErrSubmitInFlight) {
				// Keep ticking; forced submits retry on later ticks.
				continue
			}
			if c.state == StateCompleted {
				return nil
			}
		}
	}
}

func answerSet(a domain.Answer) bool {
	return a.OptionIndex != nil || a.Text != ""
}
