package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

var (
	ErrEmptyCatalog     = errors.New("catalog has no dimensions")
	ErrDuplicateCode    = errors.New("duplicate competence code")
	ErrInvalidQuestion  = errors.New("invalid question")
	ErrInvalidLevelName = errors.New("invalid level name")
	ErrDuplicateLevel   = errors.New("duplicate level")
)

// CatalogRepository loads the competence catalog from a JSON file.
type CatalogRepository struct {
	path string
}

// NewCatalogRepository creates a new CatalogRepository reading path.
func NewCatalogRepository(path string) *CatalogRepository {
	return &CatalogRepository{path: path}
}

// Load reads and validates the catalog file. It is called again on every
// cache refresh, so edits to the file are picked up without a restart.
func (r *CatalogRepository) Load() (*entities.Catalog, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document of the form
// {"dimensions": [{"id", "name", "competences": [...]}]}.
func ParseCatalog(data []byte) (*entities.Catalog, error) {
	var wrapper struct {
		Dimensions []*entities.Dimension `json:"dimensions"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog JSON: %w", err)
	}

	if len(wrapper.Dimensions) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]struct{})
	for _, d := range wrapper.Dimensions {
		for _, c := range d.Competences {
			if _, ok := seen[c.Code]; ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, c.Code)
			}
			seen[c.Code] = struct{}{}

			if err := validateQuestions(c); err != nil {
				return nil, err
			}
		}
	}

	return entities.NewCatalog(wrapper.Dimensions), nil
}

func validateQuestions(c *entities.Competence) error {
	seen := make(map[entities.Level]string, len(c.Questions))
	for levelName, questions := range c.Questions {
		level := entities.ParseLevel(levelName)
		if !level.Valid() {
			return fmt.Errorf("%w: competence %s: %q", ErrInvalidLevelName, c.Code, levelName)
		}
		if prev, ok := seen[level]; ok {
			return fmt.Errorf("%w: competence %s: %q and %q", ErrDuplicateLevel, c.Code, prev, levelName)
		}
		seen[level] = levelName

		for _, q := range questions {
			if q.ID == "" {
				return fmt.Errorf("%w: competence %s: missing id", ErrInvalidQuestion, c.Code)
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				return fmt.Errorf("%w: competence %s: question %s: correct index %d out of %d options",
					ErrInvalidQuestion, c.Code, q.ID, q.CorrectIndex, len(q.Options))
			}
		}
	}
	return nil
}
