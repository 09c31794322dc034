package service

import "github.com/aliskhannn/competence-bot/internal/domain/entities"

// Progression decides what a user may attempt next. It only reads the
// progress map and the catalog; the decisions are advisory.
type Progression struct {
	catalog  *entities.Catalog
	progress entities.ProgressMap
}

// NewProgression binds the policy to a catalog and a progress map.
func NewProgression(catalog *entities.Catalog, progress entities.ProgressMap) *Progression {
	if progress == nil {
		progress = entities.ProgressMap{}
	}
	return &Progression{catalog: catalog, progress: progress}
}

// CurrentAreaLevel returns the level a dimension is at: Avanzado once every
// competence is completed at Intermedio, Intermedio once every competence is
// completed at Básico, Básico otherwise.
func (p *Progression) CurrentAreaLevel(dimensionID string) entities.Level {
	comps := p.catalog.CompetencesOf(dimensionID)
	if len(comps) == 0 {
		return entities.LevelBasic
	}

	switch {
	case p.allCompleted(comps, entities.LevelIntermediate):
		return entities.LevelAdvanced
	case p.allCompleted(comps, entities.LevelBasic):
		return entities.LevelIntermediate
	default:
		return entities.LevelBasic
	}
}

// NextCompetenceToAttempt returns the first competence of the dimension, by
// code, that is not completed at level.
func (p *Progression) NextCompetenceToAttempt(dimensionID string, level entities.Level) (string, bool) {
	for _, c := range p.catalog.CompetencesOf(dimensionID) {
		if !p.progress.IsCompleted(c.Code, level) {
			return c.Code, true
		}
	}
	return "", false
}

// IsPreviousCompetenceCompleted reports whether a competence is unlocked at
// level: the first competence of a dimension always is, any other one only
// when every competence before it is completed at level.
func (p *Progression) IsPreviousCompetenceCompleted(competence string, level entities.Level) bool {
	comp, ok := p.catalog.Competence(competence)
	if !ok {
		return false
	}

	for _, c := range p.catalog.CompetencesOf(comp.Dimension) {
		if c.Code == competence {
			return true
		}
		if !p.progress.IsCompleted(c.Code, level) {
			return false
		}
	}
	return false
}

// Suggestion is the next step in one dimension.
type Suggestion struct {
	Dimension  *entities.Dimension
	Level      entities.Level
	Competence string // empty when the dimension is fully completed
}

// Suggestions returns the next competence to attempt in every dimension,
// at the dimension's current level.
func (p *Progression) Suggestions() []Suggestion {
	out := make([]Suggestion, 0, len(p.catalog.Dimensions()))
	for _, d := range p.catalog.Dimensions() {
		level := p.CurrentAreaLevel(d.ID)
		code, _ := p.NextCompetenceToAttempt(d.ID, level)
		out = append(out, Suggestion{Dimension: d, Level: level, Competence: code})
	}
	return out
}

func (p *Progression) allCompleted(comps []*entities.Competence, level entities.Level) bool {
	for _, c := range comps {
		if !p.progress.IsCompleted(c.Code, level) {
			return false
		}
	}
	return true
}
