package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

func progressWith(completed map[string][]entities.Level) entities.ProgressMap {
	m := entities.ProgressMap{}
	for code, levels := range completed {
		for _, l := range levels {
			m.Set(code, l, entities.ProgressStatus{Completed: true, Total: 3, Score: 67, ProgressPct: 67})
		}
	}
	return m
}

func TestProgression_OnlyFirstCompleted(t *testing.T) {
	p := NewProgression(testCatalog(), progressWith(map[string][]entities.Level{
		"1.1": {entities.LevelBasic},
	}))

	next, ok := p.NextCompetenceToAttempt("1", entities.LevelBasic)
	assert.True(t, ok)
	assert.Equal(t, "1.2", next)
	assert.Equal(t, entities.LevelBasic, p.CurrentAreaLevel("1"))

	assert.True(t, p.IsPreviousCompetenceCompleted("1.1", entities.LevelBasic))
	assert.True(t, p.IsPreviousCompetenceCompleted("1.2", entities.LevelBasic))
	assert.False(t, p.IsPreviousCompetenceCompleted("1.3", entities.LevelBasic))
}

func TestProgression_SequentialUnlock(t *testing.T) {
	// Whatever else is completed, c1 stays locked while c0 is not completed.
	others := [][]string{nil, {"1.2"}, {"1.3"}, {"1.2", "1.3"}}

	for _, level := range entities.Levels {
		for _, done := range others {
			completed := map[string][]entities.Level{}
			for _, code := range done {
				completed[code] = []entities.Level{level}
			}
			p := NewProgression(testCatalog(), progressWith(completed))

			assert.True(t, p.IsPreviousCompetenceCompleted("1.1", level))
			assert.False(t, p.IsPreviousCompetenceCompleted("1.2", level))
			assert.False(t, p.IsPreviousCompetenceCompleted("1.3", level))
		}
	}
}

func TestProgression_CurrentAreaLevel(t *testing.T) {
	all := func(levels ...entities.Level) map[string][]entities.Level {
		return map[string][]entities.Level{"1.1": levels, "1.2": levels, "1.3": levels}
	}

	tests := []struct {
		name      string
		completed map[string][]entities.Level
		want      entities.Level
	}{
		{"nothing", nil, entities.LevelBasic},
		{"all basic", all(entities.LevelBasic), entities.LevelIntermediate},
		{"all intermediate", all(entities.LevelBasic, entities.LevelIntermediate), entities.LevelAdvanced},
		{"intermediate without basic", all(entities.LevelIntermediate), entities.LevelAdvanced},
		{
			"one basic missing",
			map[string][]entities.Level{"1.1": {entities.LevelBasic}, "1.2": {entities.LevelBasic}},
			entities.LevelBasic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgression(testCatalog(), progressWith(tt.completed))
			assert.Equal(t, tt.want, p.CurrentAreaLevel("1"))
		})
	}
}

func TestProgression_EdgeCases(t *testing.T) {
	p := NewProgression(testCatalog(), nil)

	assert.Equal(t, entities.LevelBasic, p.CurrentAreaLevel("missing"))
	assert.False(t, p.IsPreviousCompetenceCompleted("9.9", entities.LevelBasic))

	_, ok := p.NextCompetenceToAttempt("missing", entities.LevelBasic)
	assert.False(t, ok)

	p = NewProgression(testCatalog(), progressWith(map[string][]entities.Level{"2.1": {entities.LevelBasic}}))
	next, ok := p.NextCompetenceToAttempt("2", entities.LevelBasic)
	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestProgression_Suggestions(t *testing.T) {
	p := NewProgression(testCatalog(), progressWith(map[string][]entities.Level{
		"1.1": {entities.LevelBasic},
		"2.1": {entities.LevelBasic},
	}))

	got := p.Suggestions()
	assert.Len(t, got, 2)

	assert.Equal(t, "1", got[0].Dimension.ID)
	assert.Equal(t, entities.LevelBasic, got[0].Level)
	assert.Equal(t, "1.2", got[0].Competence)

	assert.Equal(t, "2", got[1].Dimension.ID)
	assert.Equal(t, entities.LevelIntermediate, got[1].Level)
	assert.Equal(t, "2.1", got[1].Competence)
}
