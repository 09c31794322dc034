package entities

// Question is a multiple choice question. Sessions keep a snapshot of the
// questions they were created with, so later catalog edits never change
// how an attempt is graded.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// IsCorrect reports whether the option index is the right answer.
func (q Question) IsCorrect(optionIndex int) bool {
	return optionIndex == q.CorrectIndex
}
