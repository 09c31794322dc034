package entities

import (
	"slices"
	"time"
)

// User is the profile supplied by the identity collaborator.
type User struct {
	ID                   string   // store id of the profile record
	UserID               string   // stable identity provider id
	ChatID               int64    // Telegram chat to talk to
	DisplayName          string   // shown in greetings
	CompletedCompetences []string // competence codes passed at any level
	CreatedAt            time.Time
}

// NewUser creates a profile for an identity.
func NewUser(userID string, chatID int64, displayName string, now time.Time) *User {
	return &User{
		UserID:      userID,
		ChatID:      chatID,
		DisplayName: displayName,
		CreatedAt:   now,
	}
}

// HasCompleted reports whether the competence is in the completed list.
func (u *User) HasCompleted(competence string) bool {
	return slices.Contains(u.CompletedCompetences, competence)
}
