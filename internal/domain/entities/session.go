package entities

import (
	"math"
	"time"
)

const (
	QuestionsPerSession = 3 // questions served in one attempt
	PassingCorrectCount = 2 // correct answers needed to pass
)

// SessionState classifies a session by how far the attempt went.
type SessionState string

const (
	StateInitial    SessionState = "initial"     // nothing answered yet
	StateInProgress SessionState = "in_progress" // at least one answer, not finished
	StateCompleted  SessionState = "completed"   // end time recorded
)

// Session is one quiz attempt for a (user, competence, level) triple.
type Session struct {
	ID                   string     // store-assigned id, empty until persisted
	UserID               string     // identity provider user id
	Competence           string     // competence code, e.g. "1.1"
	Level                string     // level name as stored; see ParseLevel
	Questions            []Question // snapshot taken at creation
	Answers              []*int     // one slot per question, nil when unanswered
	CurrentQuestionIndex int        // next question to show
	StartTime            time.Time  // when the attempt was created
	EndTime              *time.Time // set once, when the attempt is completed
	Score                int        // 0-100, fixed at completion
	Passed               bool       // fixed at completion
}

// NewSession creates an unsaved session with every answer slot empty.
func NewSession(userID, competence string, level Level, questions []Question, now time.Time) *Session {
	qs := make([]Question, len(questions))
	copy(qs, questions)

	return &Session{
		UserID:               userID,
		Competence:           competence,
		Level:                level.String(),
		Questions:            qs,
		Answers:              make([]*int, len(qs)),
		CurrentQuestionIndex: 0,
		StartTime:            now,
	}
}

// IsPersisted reports whether the store has assigned an id.
func (s *Session) IsPersisted() bool {
	return s.ID != ""
}

// IsCompleted reports whether the attempt has been finished.
func (s *Session) IsCompleted() bool {
	return s.EndTime != nil
}

// AnsweredCount returns the number of filled answer slots.
func (s *Session) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a != nil {
			n++
		}
	}
	return n
}

// State classifies the session as initial, in progress or completed.
func (s *Session) State() SessionState {
	switch {
	case s.IsCompleted():
		return StateCompleted
	case s.AnsweredCount() > 0:
		return StateInProgress
	default:
		return StateInitial
	}
}

// NormalizedLevel parses the stored level string.
func (s *Session) NormalizedLevel() Level {
	return ParseLevel(s.Level)
}

// TotalQuestions returns the number of questions of the attempt.
func (s *Session) TotalQuestions() int {
	if len(s.Questions) == 0 {
		return QuestionsPerSession
	}
	return len(s.Questions)
}

// AllAnswered reports whether every slot holds an answer.
func (s *Session) AllAnswered() bool {
	return len(s.Answers) > 0 && s.AnsweredCount() == len(s.Answers)
}

// NextUnansweredIndex returns the first empty slot at or after from,
// wrapping around to earlier slots. It returns len(Answers) when all
// slots are filled.
func (s *Session) NextUnansweredIndex(from int) int {
	n := len(s.Answers)
	if n == 0 {
		return 0
	}
	if from < 0 || from >= n {
		from = 0
	}
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if s.Answers[idx] == nil {
			return idx
		}
	}
	return n
}

// CorrectCount counts answers that match the question's correct option.
func (s *Session) CorrectCount() int {
	n := 0
	for i, a := range s.Answers {
		if a == nil || i >= len(s.Questions) {
			continue
		}
		if s.Questions[i].IsCorrect(*a) {
			n++
		}
	}
	return n
}

// ReplaceQuestions swaps in a fresh question set and resizes the answers to
// match: answers for indices still in range are kept, the rest are dropped
// and new slots are empty.
func (s *Session) ReplaceQuestions(questions []Question) {
	qs := make([]Question, len(questions))
	copy(qs, questions)

	answers := make([]*int, len(qs))
	for i := range answers {
		if i < len(s.Answers) && s.Answers[i] != nil {
			v := *s.Answers[i]
			answers[i] = &v
		}
	}

	s.Questions = qs
	s.Answers = answers
	s.CurrentQuestionIndex = s.NextUnansweredIndex(0)
}

// Clone returns a deep copy so callers never share answer slots.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.Questions[i] = q
	}

	c.Answers = make([]*int, len(s.Answers))
	for i, a := range s.Answers {
		if a != nil {
			v := *a
			c.Answers[i] = &v
		}
	}

	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}

	return &c
}

// ScoreFor computes the score for correct answers out of total, rounded to
// the nearest integer percentage.
func ScoreFor(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// IsPassing reports whether correct answers are enough to pass.
func IsPassing(correct int) bool {
	return correct >= PassingCorrectCount
}

// QuestionsEqual reports whether two question sets have the same ids in
// the same order.
func QuestionsEqual(a, b []Question) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
