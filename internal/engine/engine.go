package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"examprep-attempt-service/internal/domain"
	"examprep-attempt-service/internal/result"
)

// AssessmentClient abstracts the remote assessment backend. Submit and fetch
// return the raw response body; the engine stays shape-agnostic between the
// two call sites and leaves parsing to the result reconstructor.
type AssessmentClient interface {
	StartAttempt(ctx context.Context, testID, userID string) (domain.Attempt, error)
	SubmitAttempt(ctx context.Context, attemptID string, answers []domain.AnswerPayload) ([]byte, error)
	FetchResult(ctx context.Context, attemptID string) ([]byte, error)
}

// AttemptRegistry abstracts how live attempt sessions are tracked
// (in-memory, Redis-marked, etc).
type AttemptRegistry interface {
	Add(session *Session)
	Get(attemptID string) (*Session, bool)
	Delete(attemptID string)
}

// ResultStore persists reconstructed summaries for re-reads after navigation.
type ResultStore interface {
	Save(ctx context.Context, summary domain.ResultSummary) error
	Get(ctx context.Context, attemptID string) (domain.ResultSummary, bool, error)
}

// Engine contains the attempt use cases: starting a timed attempt, capturing
// answers, forcing exactly one submission per attempt and serving results.
type Engine struct {
	registry AttemptRegistry
	client   AssessmentClient
	results  ResultStore
	archive  ResultStore
	tick     time.Duration
	now      func() time.Time
	sf       singleflight.Group
}

// New wires the engine. archive may be nil when no long-term store is
// configured; results is the hot store consulted first on re-fetch.
func New(registry AttemptRegistry, client AssessmentClient, results ResultStore, archive ResultStore) *Engine {
	return &Engine{
		registry: registry,
		client:   client,
		results:  results,
		archive:  archive,
		tick:     time.Second,
		now:      time.Now,
	}
}

// NewWithClock is test-only for deterministic deadlines and tick intervals.
func NewWithClock(registry AttemptRegistry, client AssessmentClient, results ResultStore, archive ResultStore, tick time.Duration, now func() time.Time) *Engine {
	e := New(registry, client, results, archive)
	e.tick = tick
	e.now = now
	return e
}

// Start asks the backend for a new attempt, derives the deadline once and
// starts the 1 Hz countdown. A backend error or an empty question list is
// fatal to the flow; there is no retry loop here.
func (e *Engine) Start(ctx context.Context, testID, userID string) (*Session, error) {
	attempt, err := e.client.StartAttempt(ctx, testID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStartFailed, err)
	}
	if len(attempt.Questions) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrStartFailed, domain.ErrNoQuestions)
	}

	now := e.now()
	attempt.StartedAt = now
	attempt.Deadline = now.Add(time.Duration(attempt.DurationSeconds) * time.Second)

	session := newSessionWithClock(attempt, e.now)
	e.registry.Add(session)
	go e.runClock(session)
	return session, nil
}

// runClock drives the countdown. Expiry is detected on the first tick where
// the deadline has passed, so a stalled loop still triggers exactly one forced
// submission on its next run. The loop stops after expiry or Close.
func (e *Engine) runClock(session *Session) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, expired := session.Tick(); expired {
				e.submit(session, domain.TriggerTimeout)
				return
			}
		case <-session.stop:
			return
		}
	}
}

// Select routes an option choice to the attempt's answer sheet.
func (e *Engine) Select(attemptID string, position, option int) error {
	session, ok := e.registry.Get(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound
	}
	return session.Select(position, option)
}

// ToggleReview flips the review marker for a question position.
func (e *Engine) ToggleReview(attemptID string, position int) error {
	session, ok := e.registry.Get(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound
	}
	return session.ToggleReview(position)
}

// RequestManualSubmit is the path behind the UI's submit button. The actual
// remote call happens asynchronously; concurrent or repeated triggers collapse
// into a single submission through the guard.
func (e *Engine) RequestManualSubmit(attemptID string) error {
	session, ok := e.registry.Get(attemptID)
	if !ok {
		return domain.ErrAttemptNotFound
	}
	e.submit(session, domain.TriggerManual)
	return nil
}

// Subscribe returns a channel of tick/result events for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (e *Engine) Subscribe(attemptID string) (<-chan Event, func(), error) {
	session, ok := e.registry.Get(attemptID)
	if !ok {
		return nil, nil, domain.ErrAttemptNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Close stops the countdown when the user leaves the attempt screen. An
// in-flight submission is deliberately not cancelled; its result lands in the
// result store and stays readable after reconnecting.
func (e *Engine) Close(attemptID string) {
	session, ok := e.registry.Get(attemptID)
	if !ok {
		return
	}
	session.stopClock()
	if session.State() != domain.Submitting {
		e.registry.Delete(attemptID)
	}
}

// submit flips the guard synchronously and snapshots the live answer sheet
// before the asynchronous remote call, so a second near-simultaneous trigger
// cannot slip through while the first request is in flight.
func (e *Engine) submit(session *Session, trigger domain.SubmitTrigger) {
	if !session.beginSubmit(trigger) {
		return
	}
	payload := BuildPayload(session.attempt.Questions, session.snapshotAnswers())
	go e.performSubmit(session, payload)
}

// performSubmit runs detached from any screen lifetime: the submission that
// passed the guard always runs to completion.
func (e *Engine) performSubmit(session *Session, payload []domain.AnswerPayload) {
	ctx := context.Background()
	attemptID := session.attempt.ID

	raw, err := e.client.SubmitAttempt(ctx, attemptID, payload)
	if err != nil {
		e.reconcileOrFail(ctx, session, err)
		return
	}

	summary, err := result.Reconstruct(raw, e.fallbackFor(session))
	if err != nil {
		// The backend accepted the answers; only the response was unusable.
		session.completeSubmitDegraded(err)
		return
	}
	session.completeSubmit(summary)
	e.storeResult(ctx, summary)
}

// reconcileOrFail handles a failed submit call. The backend may have recorded
// the attempt even though the response never arrived, so the result endpoint
// is consulted before the gate re-opens for the single manual retry.
func (e *Engine) reconcileOrFail(ctx context.Context, session *Session, submitErr error) {
	if raw, err := e.client.FetchResult(ctx, session.attempt.ID); err == nil {
		if summary, rerr := result.Reconstruct(raw, e.fallbackFor(session)); rerr == nil {
			session.completeSubmit(summary)
			e.storeResult(ctx, summary)
			return
		}
	}
	session.failSubmit(fmt.Errorf("%w: %v", domain.ErrSubmitFailed, submitErr))
}

func (e *Engine) fallbackFor(session *Session) result.Fallback {
	return result.Fallback{
		AttemptID:        session.attempt.ID,
		TotalQuestions:   len(session.attempt.Questions),
		TimeTakenSeconds: session.TimeSpentSeconds(),
	}
}

func (e *Engine) storeResult(ctx context.Context, summary domain.ResultSummary) {
	// Best-effort: a store outage must not fail an already-accepted submission.
	_ = e.results.Save(ctx, summary)
	if e.archive != nil {
		_ = e.archive.Save(ctx, summary)
	}
}

// Result serves a summary for a submitted attempt: live session first, then
// the hot store, then the archive, then a deduplicated re-fetch from the
// backend. Re-fetching is idempotent and needs no guard.
func (e *Engine) Result(ctx context.Context, attemptID string) (domain.ResultSummary, error) {
	if session, ok := e.registry.Get(attemptID); ok {
		if summary, ok := session.Result(); ok {
			return summary, nil
		}
	}

	if summary, ok, err := e.results.Get(ctx, attemptID); err == nil && ok {
		return summary, nil
	}
	if e.archive != nil {
		if summary, ok, err := e.archive.Get(ctx, attemptID); err == nil && ok {
			_ = e.results.Save(ctx, summary)
			return summary, nil
		}
	}

	fetched, err, _ := e.sf.Do(attemptID, func() (interface{}, error) {
		raw, err := e.client.FetchResult(ctx, attemptID)
		if err != nil {
			return domain.ResultSummary{}, fmt.Errorf("%w: %v", domain.ErrResultFetchFailed, err)
		}
		summary, err := result.Reconstruct(raw, result.Fallback{AttemptID: attemptID})
		if err != nil {
			return domain.ResultSummary{}, err
		}
		e.storeResult(ctx, summary)
		return summary, nil
	})
	if err != nil {
		return domain.ResultSummary{}, err
	}
	return fetched.(domain.ResultSummary), nil
}
