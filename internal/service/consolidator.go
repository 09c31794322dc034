package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// Consolidation is the outcome of collapsing one (user, competence, level)
// group to a single effective session.
type Consolidation struct {
	Canonical  *entities.Session
	State      entities.SessionState
	Status     entities.ProgressStatus
	Duplicates []*entities.Session // the rest of the group, in input order
}

// Consolidate picks the canonical session of a group.
//
// Completed sessions always win: the one with the latest end time. Without
// any, the in-progress session with the most answers wins; without those,
// the most recently started initial session. Remaining ties go to the
// latest start time and then to the smallest id, so the result does not
// depend on input order.
func Consolidate(sessions []*entities.Session) (Consolidation, error) {
	var canonical *entities.Session
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if canonical == nil || outranks(s, canonical) {
			canonical = s
		}
	}

	if canonical == nil {
		return Consolidation{}, fmt.Errorf("consolidate: %w", entities.ErrInsufficientData)
	}

	var duplicates []*entities.Session
	for _, s := range sessions {
		if s != nil && s != canonical {
			duplicates = append(duplicates, s)
		}
	}

	return Consolidation{
		Canonical:  canonical,
		State:      canonical.State(),
		Status:     entities.StatusOf(canonical),
		Duplicates: duplicates,
	}, nil
}

func stateRank(st entities.SessionState) int {
	switch st {
	case entities.StateCompleted:
		return 2
	case entities.StateInProgress:
		return 1
	default:
		return 0
	}
}

// outranks reports whether a should be canonical over b.
func outranks(a, b *entities.Session) bool {
	ra, rb := stateRank(a.State()), stateRank(b.State())
	if ra != rb {
		return ra > rb
	}

	switch a.State() {
	case entities.StateCompleted:
		if c := compareTime(*a.EndTime, *b.EndTime); c != 0 {
			return c > 0
		}
	case entities.StateInProgress:
		if na, nb := a.AnsweredCount(), b.AnsweredCount(); na != nb {
			return na > nb
		}
	}

	if c := compareTime(a.StartTime, b.StartTime); c != 0 {
		return c > 0
	}

	return strings.Compare(a.ID, b.ID) < 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.After(b):
		return 1
	case a.Before(b):
		return -1
	default:
		return 0
	}
}
