package entities

import "strings"

// Level is the difficulty tier of a competence quiz.
type Level int

const (
	LevelUnknown      Level = iota // level string did not match any known tier
	LevelBasic                     // Básico
	LevelIntermediate              // Intermedio
	LevelAdvanced                  // Avanzado
)

// Levels lists the known tiers in ascending order.
var Levels = []Level{LevelBasic, LevelIntermediate, LevelAdvanced}

// String returns the canonical level name as stored in session records.
func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "Básico"
	case LevelIntermediate:
		return "Intermedio"
	case LevelAdvanced:
		return "Avanzado"
	default:
		return "unknown"
	}
}

// Code returns a one-letter code for compact encodings (callback data, keys).
func (l Level) Code() string {
	switch l {
	case LevelBasic:
		return "b"
	case LevelIntermediate:
		return "i"
	case LevelAdvanced:
		return "a"
	default:
		return ""
	}
}

// Valid reports whether l is one of the known tiers.
func (l Level) Valid() bool {
	return l >= LevelBasic && l <= LevelAdvanced
}

// ParseLevel normalizes a free-form level string.
//
// Matching is a case-insensitive substring match, so "básico", "Basico 1"
// and "BÁSICO" all map to LevelBasic. Anything else is LevelUnknown.
func ParseLevel(s string) Level {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "básico"), strings.Contains(v, "basico"):
		return LevelBasic
	case strings.Contains(v, "intermedio"):
		return LevelIntermediate
	case strings.Contains(v, "avanzado"):
		return LevelAdvanced
	default:
		return LevelUnknown
	}
}

// LevelFromCode is the inverse of Level.Code.
func LevelFromCode(code string) Level {
	switch code {
	case "b":
		return LevelBasic
	case "i":
		return LevelIntermediate
	case "a":
		return LevelAdvanced
	default:
		return LevelUnknown
	}
}
