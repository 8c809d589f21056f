package engine

import "examprep-attempt-service/internal/domain"

// BuildPayload converts the answer sheet into the wire format the assessment
// backend expects: one entry per question position, in order, with the chosen
// option or an explicit skipped marker.
func BuildPayload(questions []domain.Question, answers []domain.AnswerEntry) []domain.AnswerPayload {
	payload := make([]domain.AnswerPayload, len(questions))
	for i, question := range questions {
		entry := domain.AnswerPayload{QuestionID: question.ID, Skipped: true}
		if i < len(answers) && answers[i].Answered() {
			selected := answers[i].SelectedOption
			entry.SelectedOption = &selected
			entry.Skipped = false
		}
		payload[i] = entry
	}
	return payload
}
