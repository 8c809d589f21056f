package engine

import (
	"sync"
	"testing"
	"time"

	"examprep-attempt-service/internal/domain"
)

func TestSelectOverwritesAndIsIdempotent(t *testing.T) {
	sess := newTestSession(3, 60)

	if err := sess.Select(0, 1); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	answered, _, _ := sess.Counts()
	if answered != 1 {
		t.Fatalf("expected 1 answered, got %d", answered)
	}

	// Same option again must not change anything.
	if err := sess.Select(0, 1); err != nil {
		t.Fatalf("repeat select failed: %v", err)
	}
	answered, unanswered, _ := sess.Counts()
	if answered != 1 || unanswered != 2 {
		t.Fatalf("expected counts unchanged, got answered=%d unanswered=%d", answered, unanswered)
	}

	// Changing their mind overwrites the entry.
	if err := sess.Select(0, 2); err != nil {
		t.Fatalf("overwrite select failed: %v", err)
	}
	answers := sess.snapshotAnswers()
	if answers[0].SelectedOption != 2 {
		t.Fatalf("expected option 2, got %d", answers[0].SelectedOption)
	}
}

func TestSelectValidatesBounds(t *testing.T) {
	sess := newTestSession(2, 60)

	if err := sess.Select(5, 0); err != domain.ErrPositionOutOfRange {
		t.Fatalf("expected position error, got %v", err)
	}
	if err := sess.Select(0, 9); err != domain.ErrOptionOutOfRange {
		t.Fatalf("expected option error, got %v", err)
	}
	if err := sess.ToggleReview(-1); err != domain.ErrPositionOutOfRange {
		t.Fatalf("expected position error, got %v", err)
	}
}

func TestToggleReviewFlips(t *testing.T) {
	sess := newTestSession(3, 60)

	if err := sess.ToggleReview(1); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if _, _, review := sess.Counts(); review != 1 {
		t.Fatalf("expected 1 marked for review, got %d", review)
	}
	if err := sess.ToggleReview(1); err != nil {
		t.Fatalf("toggle back failed: %v", err)
	}
	if _, _, review := sess.Counts(); review != 0 {
		t.Fatalf("expected 0 marked for review, got %d", review)
	}
}

func TestMutationRejectedAfterSubmissionStarts(t *testing.T) {
	sess := newTestSession(2, 60)
	if err := sess.Select(0, 0); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	if !sess.beginSubmit(domain.TriggerManual) {
		t.Fatalf("expected guard to open")
	}

	if err := sess.Select(1, 0); err != domain.ErrAttemptClosed {
		t.Fatalf("expected closed error, got %v", err)
	}
	if err := sess.ToggleReview(0); err != domain.ErrAttemptClosed {
		t.Fatalf("expected closed error, got %v", err)
	}

	// The frozen sheet still holds the pre-submission selection only.
	answers := sess.snapshotAnswers()
	if answers[0].SelectedOption != 0 || answers[1].Answered() {
		t.Fatalf("answer sheet changed after submission: %+v", answers)
	}
}

func TestRemainingIsDeadlineDerived(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	sess := newSessionWithClock(testAttempt(2, 60, clk.Now()), clk.Now)

	if got := sess.Remaining(); got != 60 {
		t.Fatalf("expected 60s remaining, got %d", got)
	}

	clk.Advance(5 * time.Second)
	if got := sess.Remaining(); got != 55 {
		t.Fatalf("expected 55s remaining, got %d", got)
	}

	// A stalled loop skips many ticks; the next one that runs must still see 0.
	clk.Advance(2 * time.Minute)
	if got := sess.Remaining(); got != 0 {
		t.Fatalf("expected 0s remaining, got %d", got)
	}
}

func TestTickExpiresExactlyOnce(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	sess := newSessionWithClock(testAttempt(2, 1, clk.Now()), clk.Now)

	if _, expired := sess.Tick(); expired {
		t.Fatalf("expired before the deadline")
	}

	clk.Advance(10 * time.Second)
	if _, expired := sess.Tick(); !expired {
		t.Fatalf("expected expiry on first tick past deadline")
	}
	if _, expired := sess.Tick(); expired {
		t.Fatalf("expiry fired twice")
	}
}

func TestGuardSingleWinner(t *testing.T) {
	sess := newTestSession(3, 60)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < callers; i++ {
		trigger := domain.TriggerManual
		if i%2 == 0 {
			trigger = domain.TriggerTimeout
		}
		wg.Add(1)
		go func(tr domain.SubmitTrigger) {
			defer wg.Done()
			if sess.beginSubmit(tr) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(trigger)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if sess.State() != domain.Submitting {
		t.Fatalf("expected Submitting, got %v", sess.State())
	}
}

func TestGuardRetryIsManualAndSingle(t *testing.T) {
	sess := newTestSession(2, 60)

	if !sess.beginSubmit(domain.TriggerTimeout) {
		t.Fatalf("first submit should pass")
	}
	if terminal := sess.failSubmit(domain.ErrSubmitFailed); terminal {
		t.Fatalf("first failure should be retryable")
	}

	// Timeout retriggers never re-open the gate.
	if sess.beginSubmit(domain.TriggerTimeout) {
		t.Fatalf("timeout retrigger slipped through")
	}
	if !sess.beginSubmit(domain.TriggerManual) {
		t.Fatalf("manual retry should pass")
	}
	if terminal := sess.failSubmit(domain.ErrSubmitFailed); !terminal {
		t.Fatalf("second failure should be terminal")
	}
	if sess.beginSubmit(domain.TriggerManual) {
		t.Fatalf("gate re-opened after terminal failure")
	}
}

func TestGuardNeverReopensAfterSubmitted(t *testing.T) {
	sess := newTestSession(2, 60)

	if !sess.beginSubmit(domain.TriggerManual) {
		t.Fatalf("submit should pass")
	}
	sess.completeSubmit(domain.ResultSummary{AttemptID: sess.attempt.ID})

	if sess.beginSubmit(domain.TriggerManual) || sess.beginSubmit(domain.TriggerTimeout) {
		t.Fatalf("submitted attempt accepted another submission")
	}
	if sess.State() != domain.Submitted {
		t.Fatalf("expected Submitted, got %v", sess.State())
	}
}

func TestSubscribeReceivesTicksAndResult(t *testing.T) {
	sess := newTestSession(2, 60)

	ch, cancel := sess.subscribe()
	defer cancel()

	initial := <-ch
	if initial.Kind != EventTick || initial.Remaining != 60 {
		t.Fatalf("unexpected initial event: %+v", initial)
	}

	sess.Tick()
	if ev := <-ch; ev.Kind != EventTick {
		t.Fatalf("expected tick, got %+v", ev)
	}

	if !sess.beginSubmit(domain.TriggerManual) {
		t.Fatalf("submit should pass")
	}
	sess.completeSubmit(domain.ResultSummary{AttemptID: sess.attempt.ID, Correct: 1})

	ev := <-ch
	if ev.Kind != EventResult || ev.Result == nil || ev.Result.Correct != 1 {
		t.Fatalf("expected result event, got %+v", ev)
	}
}

// ---- helpers ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testAttempt(questions, durationSeconds int, started time.Time) domain.Attempt {
	qs := make([]domain.Question, questions)
	for i := range qs {
		qs[i] = domain.Question{
			ID:      string(rune('a' + i)),
			Prompt:  "pick one",
			Options: []string{"one", "two", "three", "four"},
		}
	}
	return domain.Attempt{
		ID:              "attempt-1",
		TestID:          "test-1",
		UserID:          "u1",
		Questions:       qs,
		DurationSeconds: durationSeconds,
		StartedAt:       started,
		Deadline:        started.Add(time.Duration(durationSeconds) * time.Second),
	}
}

func newTestSession(questions, durationSeconds int) *Session {
	clk := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return newSessionWithClock(testAttempt(questions, durationSeconds, clk.Now()), clk.Now)
}
