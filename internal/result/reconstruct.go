// Package result rebuilds display-ready summaries from the assessment
// backend's responses. The backend is not consistent about response nesting
// or about which aggregates it precomputes, so parsing is deliberately
// tolerant: a short ordered list of extraction strategies is tried, and any
// missing optional field degrades to a zero value instead of failing.
package result

import (
	"encoding/json"
	"fmt"

	"examprep-attempt-service/internal/domain"
)

// Fallback supplies values known locally when the response omits them.
type Fallback struct {
	AttemptID        string
	TotalQuestions   int
	TimeTakenSeconds int
}

type rawAnswer struct {
	QuestionID string   `json:"questionId"`
	IsCorrect  bool     `json:"isCorrect"`
	Skipped    bool     `json:"skipped"`
	Marks      *float64 `json:"marks"`
}

// envelope mirrors the union of shapes the backend has been seen to return.
// Pointer fields distinguish "absent" from zero.
type envelope struct {
	AttemptID  string      `json:"attemptId"`
	Total      *int        `json:"totalQuestions"`
	Correct    *int        `json:"correct"`
	Incorrect  *int        `json:"incorrect"`
	Skipped    *int        `json:"skipped"`
	Attempted  *int        `json:"attempted"`
	Marks      *float64    `json:"marksObtained"`
	TotalMarks *float64    `json:"totalMarks"`
	Percentage *float64    `json:"percentage"`
	Accuracy   *float64    `json:"accuracy"`
	TimeTaken  *int        `json:"timeTakenSeconds"`
	Rank       *int        `json:"rank"`
	Coins      *int        `json:"coinsEarned"`
	Answers    []rawAnswer `json:"answers"`
}

func (e envelope) usable() bool {
	return len(e.Answers) > 0 ||
		e.Correct != nil ||
		e.Marks != nil ||
		e.Percentage != nil ||
		e.Total != nil
}

// extractors are tried in order: flat body first, then the wrapper keys the
// backend nests payloads under depending on endpoint and version.
var extractors = []func([]byte) (envelope, bool){
	extractTopLevel,
	extractWrapped("data"),
	extractWrapped("result"),
	extractWrapped("response"),
}

func extractTopLevel(raw []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false
	}
	return env, env.usable()
}

func extractWrapped(key string) func([]byte) (envelope, bool) {
	return func(raw []byte) (envelope, bool) {
		var outer map[string]json.RawMessage
		if err := json.Unmarshal(raw, &outer); err != nil {
			return envelope{}, false
		}
		inner, ok := outer[key]
		if !ok {
			return envelope{}, false
		}
		return extractTopLevel(inner)
	}
}

// Reconstruct derives a ResultSummary from a raw submit or fetch-result
// response. When aggregate fields and a per-question answer list disagree the
// list wins; it is closer to ground truth than a possibly-stale aggregate.
// The only failure mode is a response with nothing usable at all.
func Reconstruct(raw []byte, fb Fallback) (domain.ResultSummary, error) {
	var env envelope
	found := false
	for _, extract := range extractors {
		if e, ok := extract(raw); ok {
			env = e
			found = true
			break
		}
	}
	if !found {
		return domain.ResultSummary{}, fmt.Errorf("%w: no recognizable fields in response", domain.ErrMalformedResult)
	}

	summary := domain.ResultSummary{AttemptID: env.AttemptID}
	if summary.AttemptID == "" {
		summary.AttemptID = fb.AttemptID
	}

	if len(env.Answers) > 0 {
		deriveFromAnswers(&summary, env)
	} else {
		fillFromAggregates(&summary, env, fb)
	}

	summary.TimeTakenSeconds = intOr(env.TimeTaken, fb.TimeTakenSeconds)
	if env.Rank != nil {
		summary.Rank = *env.Rank
		summary.HasRank = true
	}
	summary.CoinsEarned = intOr(env.Coins, 0)
	return summary, nil
}

func deriveFromAnswers(summary *domain.ResultSummary, env envelope) {
	total := len(env.Answers)
	var correct, skipped int
	var marks float64
	for _, ans := range env.Answers {
		switch {
		case ans.Skipped:
			skipped++
		case ans.IsCorrect:
			correct++
		}
		if ans.Marks != nil {
			marks += *ans.Marks
		} else if ans.IsCorrect {
			marks++
		}
	}

	summary.TotalQuestions = total
	summary.Correct = correct
	summary.Skipped = skipped
	summary.Incorrect = total - correct - skipped
	summary.Attempted = total - skipped
	summary.MarksObtained = marks
	summary.TotalMarks = floatOr(env.TotalMarks, float64(total))
	summary.Accuracy = ratio(float64(correct), float64(summary.Attempted))
	summary.Percentage = ratio(marks, summary.TotalMarks) * 100
}

func fillFromAggregates(summary *domain.ResultSummary, env envelope, fb Fallback) {
	summary.Correct = intOr(env.Correct, 0)
	summary.Incorrect = intOr(env.Incorrect, 0)
	summary.Skipped = intOr(env.Skipped, 0)
	summary.TotalQuestions = intOr(env.Total, 0)
	if summary.TotalQuestions == 0 {
		summary.TotalQuestions = summary.Correct + summary.Incorrect + summary.Skipped
	}
	if summary.TotalQuestions == 0 {
		summary.TotalQuestions = fb.TotalQuestions
	}
	summary.Attempted = intOr(env.Attempted, summary.TotalQuestions-summary.Skipped)
	summary.MarksObtained = floatOr(env.Marks, 0)
	summary.TotalMarks = floatOr(env.TotalMarks, 0)

	if env.Accuracy != nil {
		summary.Accuracy = *env.Accuracy
	} else {
		summary.Accuracy = ratio(float64(summary.Correct), float64(summary.Attempted))
	}
	if env.Percentage != nil {
		summary.Percentage = *env.Percentage
	} else {
		summary.Percentage = ratio(summary.MarksObtained, summary.TotalMarks) * 100
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func floatOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
