package engine

import (
	"sync"
	"time"

	"examprep-attempt-service/internal/domain"
)

// EventKind tags the updates pushed to session subscribers.
type EventKind string

const (
	// EventTick carries the remaining seconds and answer-sheet counters.
	EventTick EventKind = "tick"
	// EventResult carries the reconstructed summary once submission completed.
	EventResult EventKind = "result"
	// EventSubmitError reports a failed submission. Terminal is false while one
	// manual retry is still permitted.
	EventSubmitError EventKind = "submitError"
	// EventResultError reports that the backend accepted the submission but the
	// result could not be reconstructed; the summary can be re-fetched later.
	EventResultError EventKind = "resultError"
)

// Event is a single update delivered to subscribers of an attempt session.
type Event struct {
	Kind       EventKind             `json:"kind"`
	Remaining  int                   `json:"remaining"`
	Answered   int                   `json:"answered"`
	Unanswered int                   `json:"unanswered"`
	Review     int                   `json:"review"`
	Result     *domain.ResultSummary `json:"result,omitempty"`
	Message    string                `json:"message,omitempty"`
	Terminal   bool                  `json:"terminal,omitempty"`
}

// Session is the in-memory runtime of one attempt: the answer sheet, the
// deadline countdown and the submission latch. All state is guarded by one
// mutex; the latch flips synchronously before any remote work starts.
type Session struct {
	attempt domain.Attempt
	now     func() time.Time

	mu          sync.RWMutex
	answers     []domain.AnswerEntry
	state       domain.SubmissionState
	retrySpent  bool
	terminal    bool
	expired     bool
	timeSpent   int
	result      *domain.ResultSummary
	subscribers map[chan Event]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(attempt domain.Attempt) *Session {
	return newSessionWithClock(attempt, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(attempt domain.Attempt, now func() time.Time) *Session {
	return newSessionWithClock(attempt, now)
}

// newSessionWithClock allows deterministic countdowns in tests. Every question
// position gets an unanswered entry up front, so the sheet always holds exactly
// one entry per question.
func newSessionWithClock(attempt domain.Attempt, now func() time.Time) *Session {
	answers := make([]domain.AnswerEntry, len(attempt.Questions))
	for i := range answers {
		answers[i].SelectedOption = domain.NoSelection
	}
	return &Session{
		attempt:     attempt,
		now:         now,
		answers:     answers,
		state:       domain.NotSubmitted,
		subscribers: make(map[chan Event]struct{}),
		stop:        make(chan struct{}),
	}
}

// Attempt returns the immutable attempt metadata.
func (s *Session) Attempt() domain.Attempt {
	return s.attempt
}

// Select records an option for a question position, overwriting any earlier
// choice. Selecting the same option again is a no-op change. Mutation is
// rejected once the submission latch left NotSubmitted.
func (s *Session) Select(position, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.NotSubmitted {
		return domain.ErrAttemptClosed
	}
	if position < 0 || position >= len(s.answers) {
		return domain.ErrPositionOutOfRange
	}
	if option < 0 || option >= len(s.attempt.Questions[position].Options) {
		return domain.ErrOptionOutOfRange
	}
	s.answers[position].SelectedOption = option
	return nil
}

// ToggleReview flips the marked-for-review flag for a question position.
func (s *Session) ToggleReview(position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.NotSubmitted {
		return domain.ErrAttemptClosed
	}
	if position < 0 || position >= len(s.answers) {
		return domain.ErrPositionOutOfRange
	}
	s.answers[position].MarkedForReview = !s.answers[position].MarkedForReview
	return nil
}

// Counts reports answered, unanswered and marked-for-review totals.
func (s *Session) Counts() (answered, unanswered, review int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

func (s *Session) countsLocked() (answered, unanswered, review int) {
	for _, entry := range s.answers {
		if entry.Answered() {
			answered++
		} else {
			unanswered++
		}
		if entry.MarkedForReview {
			review++
		}
	}
	return answered, unanswered, review
}

// Remaining returns the whole seconds left until the deadline, never negative.
// It is always derived from the deadline, not from a decremented counter, so a
// stalled tick loop cannot make it drift.
func (s *Session) Remaining() int {
	return s.remainingAt(s.now())
}

func (s *Session) remainingAt(t time.Time) int {
	d := s.attempt.Deadline.Sub(t)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	return secs
}

// Tick recomputes the remaining time, pushes a tick event to subscribers and
// reports whether the deadline has just been crossed. The expiry signal fires
// exactly once: the first tick where now >= deadline, even when several tick
// intervals were missed while the process was stalled.
func (s *Session) Tick() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.remainingAt(s.now())
	answered, unanswered, review := s.countsLocked()
	ev := Event{
		Kind:       EventTick,
		Remaining:  remaining,
		Answered:   answered,
		Unanswered: unanswered,
		Review:     review,
	}
	s.broadcastLocked(ev)

	expiredNow := false
	if remaining <= 0 && !s.expired {
		s.expired = true
		expiredNow = true
	}
	return ev, expiredNow
}

// State returns the current submission latch state.
func (s *Session) State() domain.SubmissionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Result returns the reconstructed summary, if submission already completed.
func (s *Session) Result() (domain.ResultSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return domain.ResultSummary{}, false
	}
	return *s.result, true
}

// TimeSpentSeconds reports the elapsed attempt time frozen at submission.
func (s *Session) TimeSpentSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeSpent
}

// beginSubmit is the submission guard. The first caller wins and flips the
// latch to Submitting before any asynchronous work; everyone else gets false.
// From SubmitFailed only a single manual retry may re-open the gate; timeout
// triggers never re-fire against a possibly-down backend.
func (s *Session) beginSubmit(trigger domain.SubmitTrigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.NotSubmitted:
	case domain.SubmitFailed:
		if trigger != domain.TriggerManual || s.retrySpent {
			return false
		}
		s.retrySpent = true
	default:
		return false
	}

	s.state = domain.Submitting
	spent := int(s.now().Sub(s.attempt.StartedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}
	if spent > s.attempt.DurationSeconds {
		spent = s.attempt.DurationSeconds
	}
	s.timeSpent = spent
	return true
}

// snapshotAnswers copies the live answer sheet. Called at the instant of
// submission so the payload reflects the latest interaction, not whatever a
// timer closure captured at registration time.
func (s *Session) snapshotAnswers() []domain.AnswerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnswerEntry, len(s.answers))
	copy(out, s.answers)
	return out
}

// failSubmit records a failed remote call. It never rolls back to
// NotSubmitted; the reported bool is true once the one retry is spent.
func (s *Session) failSubmit(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.SubmitFailed
	s.terminal = s.retrySpent
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.broadcastLocked(Event{Kind: EventSubmitError, Message: msg, Terminal: s.terminal})
	return s.terminal
}

// completeSubmit latches the terminal Submitted state and publishes the result.
func (s *Session) completeSubmit(summary domain.ResultSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.Submitted
	s.result = &summary
	s.broadcastLocked(Event{Kind: EventResult, Result: &summary})
}

// completeSubmitDegraded marks the attempt Submitted without a usable summary.
// The backend accepted the answers; only the response shape was unusable.
func (s *Session) completeSubmitDegraded(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.Submitted
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.broadcastLocked(Event{Kind: EventResultError, Message: msg})
}

func (s *Session) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	answered, unanswered, review := s.countsLocked()
	initial := Event{
		Kind:       EventTick,
		Remaining:  s.remainingAt(s.now()),
		Answered:   answered,
		Unanswered: unanswered,
		Review:     review,
	}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest pending update so slow clients never block ticks.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// stopClock halts the countdown loop. An in-flight submission keeps running;
// only the periodic ticking stops.
func (s *Session) stopClock() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}
