package entities

import (
	"math"
	"time"
)

// ProgressStatus is the derived state of one competence at one level.
// It is never persisted; it is rebuilt from session records.
type ProgressStatus struct {
	Completed   bool // canonical session has an end time
	InProgress  bool // canonical session has answers but no end time
	Passed      bool // canonical session passed, only meaningful when completed
	Answered    int  // filled answer slots of the canonical session
	Total       int  // question count of the canonical session
	Score       int  // score of the canonical session, 0 until completed
	ProgressPct int  // 0-100, 100 only for a perfect completed attempt
}

// EmptyStatus is the status of a competence level nobody has attempted.
func EmptyStatus() ProgressStatus {
	return ProgressStatus{Total: QuestionsPerSession}
}

// StatusOf derives the progress status of a single session.
func StatusOf(s *Session) ProgressStatus {
	total := s.TotalQuestions()
	answered := s.AnsweredCount()
	answeredPct := int(math.Round(float64(answered) / float64(total) * 100))

	st := ProgressStatus{
		Answered: answered,
		Total:    total,
	}

	switch s.State() {
	case StateCompleted:
		st.Completed = true
		st.Passed = s.Passed
		st.Score = s.Score
		if s.Score == 100 {
			st.ProgressPct = 100
		} else {
			st.ProgressPct = min(99, max(s.Score, answeredPct))
		}
	case StateInProgress:
		st.InProgress = true
		st.ProgressPct = min(99, answeredPct)
	}

	return st
}

// ProgressMap maps competence code -> level -> status.
type ProgressMap map[string]map[Level]ProgressStatus

// Status returns the status of a competence level, or the empty status.
func (m ProgressMap) Status(competence string, level Level) ProgressStatus {
	if byLevel, ok := m[competence]; ok {
		if st, ok := byLevel[level]; ok {
			return st
		}
	}
	return EmptyStatus()
}

// IsCompleted reports whether the competence is completed at level.
func (m ProgressMap) IsCompleted(competence string, level Level) bool {
	return m.Status(competence, level).Completed
}

// Set stores the status of a competence level.
func (m ProgressMap) Set(competence string, level Level, st ProgressStatus) {
	byLevel, ok := m[competence]
	if !ok {
		byLevel = make(map[Level]ProgressStatus, len(Levels))
		m[competence] = byLevel
	}
	byLevel[level] = st
}

// AreaLevelStats counts completed competences of a dimension at one level.
type AreaLevelStats struct {
	CompletedCount int
	TotalCount     int
}

// AreaStats maps dimension id -> level -> stats.
type AreaStats map[string]map[Level]AreaLevelStats

// ProgressSnapshot is one published rebuild of a user's progress.
type ProgressSnapshot struct {
	UserID   string
	Progress ProgressMap
	Areas    AreaStats
	Sessions int // session records observed
	Excluded int // records left out of aggregation
	BuiltAt  time.Time
}
