package entities

import (
	"maps"
	"slices"
	"strings"
)

// Competence is a skill unit that belongs to one dimension.
type Competence struct {
	Code      string                `json:"code"` // e.g. "1.1"
	Name      string                `json:"name"`
	Dimension string                `json:"-"`
	Questions map[string][]Question `json:"questions"` // keyed by level name
}

// QuestionsFor returns the catalog questions of the competence at level.
// Level names are visited in sorted order, so the first spelling wins when
// several normalize to the same level.
func (c *Competence) QuestionsFor(level Level) []Question {
	for _, name := range slices.Sorted(maps.Keys(c.Questions)) {
		if ParseLevel(name) == level {
			return c.Questions[name]
		}
	}
	return nil
}

// Dimension groups competences into an area.
type Dimension struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Competences []*Competence `json:"competences"`
}

// Catalog is the static competence tree with lookup indices.
type Catalog struct {
	dimensions   []*Dimension
	byID         map[string]*Dimension
	byCode       map[string]*Competence
	sortedByArea map[string][]*Competence
}

// NewCatalog builds the indices. Competences of each dimension are ordered
// by code so sequential unlocking does not depend on file order.
func NewCatalog(dimensions []*Dimension) *Catalog {
	c := &Catalog{
		dimensions:   dimensions,
		byID:         make(map[string]*Dimension, len(dimensions)),
		byCode:       make(map[string]*Competence),
		sortedByArea: make(map[string][]*Competence, len(dimensions)),
	}

	for _, d := range dimensions {
		c.byID[d.ID] = d

		sorted := make([]*Competence, 0, len(d.Competences))
		for _, comp := range d.Competences {
			comp.Dimension = d.ID
			c.byCode[comp.Code] = comp
			sorted = append(sorted, comp)
		}
		slices.SortFunc(sorted, func(a, b *Competence) int {
			return strings.Compare(a.Code, b.Code)
		})
		c.sortedByArea[d.ID] = sorted
	}

	return c
}

// Dimensions returns the dimensions in catalog order.
func (c *Catalog) Dimensions() []*Dimension {
	return c.dimensions
}

// Dimension looks up a dimension by id.
func (c *Catalog) Dimension(id string) (*Dimension, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Competence looks up a competence by code.
func (c *Catalog) Competence(code string) (*Competence, bool) {
	comp, ok := c.byCode[code]
	return comp, ok
}

// CompetencesOf returns the competences of a dimension sorted by code.
func (c *Catalog) CompetencesOf(dimensionID string) []*Competence {
	return c.sortedByArea[dimensionID]
}

// Competences returns every competence, grouped by dimension and sorted by
// code inside each dimension.
func (c *Catalog) Competences() []*Competence {
	var out []*Competence
	for _, d := range c.dimensions {
		out = append(out, c.sortedByArea[d.ID]...)
	}
	return out
}
