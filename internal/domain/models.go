package domain

import "time"

// Question is a single multiple-choice question as presented during an attempt.
// Correct answers are never held client-side; the assessment backend is
// authoritative for grading.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Attempt is one timed session of answering a fixed question set. The ID is
// issued by the assessment backend when the attempt starts; the question list
// and duration are fixed for the lifetime of the attempt.
type Attempt struct {
	ID              string     `json:"attemptId"`
	TestID          string     `json:"testId"`
	UserID          string     `json:"userId"`
	Questions       []Question `json:"questions"`
	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       time.Time  `json:"startedAt"`
	Deadline        time.Time  `json:"deadline"`
}

// NoSelection marks a question position with no chosen option.
const NoSelection = -1

// AnswerEntry tracks the user's current selection for one question position.
type AnswerEntry struct {
	SelectedOption  int  `json:"selectedOption"`
	MarkedForReview bool `json:"markedForReview"`
}

// Answered reports whether an option has been chosen.
func (e AnswerEntry) Answered() bool {
	return e.SelectedOption != NoSelection
}

// AnswerPayload is the wire form of one answer sent to the assessment backend
// at submission time. SelectedOption is nil for skipped questions.
type AnswerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedOption *int   `json:"selectedOption"`
	Skipped        bool   `json:"skipped"`
}

// SubmissionState is the attempt's submission latch. Transitions are
// one-directional: NotSubmitted -> Submitting -> Submitted, with
// SubmitFailed as the retryable detour after a failed remote call.
// There is never a transition back to NotSubmitted.
type SubmissionState int

const (
	NotSubmitted SubmissionState = iota
	Submitting
	SubmitFailed
	Submitted
)

func (s SubmissionState) String() string {
	switch s {
	case NotSubmitted:
		return "not_submitted"
	case Submitting:
		return "submitting"
	case SubmitFailed:
		return "submit_failed"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

// SubmitTrigger distinguishes who fired a submission.
type SubmitTrigger string

const (
	TriggerManual  SubmitTrigger = "manual"
	TriggerTimeout SubmitTrigger = "timeout"
)

// ResultSummary is the display-ready outcome of a submitted attempt. It is
// derived from the backend's response, never authored directly.
type ResultSummary struct {
	AttemptID        string  `json:"attemptId"`
	TotalQuestions   int     `json:"totalQuestions"`
	Attempted        int     `json:"attempted"`
	Correct          int     `json:"correct"`
	Incorrect        int     `json:"incorrect"`
	Skipped          int     `json:"skipped"`
	MarksObtained    float64 `json:"marksObtained"`
	TotalMarks       float64 `json:"totalMarks"`
	Percentage       float64 `json:"percentage"`
	Accuracy         float64 `json:"accuracy"`
	TimeTakenSeconds int     `json:"timeTakenSeconds"`
	Rank             int     `json:"rank"`
	HasRank          bool    `json:"hasRank"`
	CoinsEarned      int     `json:"coinsEarned"`
}
