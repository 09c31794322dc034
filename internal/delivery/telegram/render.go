package telegram

import (
	"fmt"
	"strings"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/service"
)

const progressBarLength = 10

// renderProgress renders the per-area progress screen.
func renderProgress(catalog *entities.Catalog, snap entities.ProgressSnapshot) string {
	progression := service.NewProgression(catalog, snap.Progress)

	var sb strings.Builder
	sb.WriteString("<b>📊 Tu progreso</b>\n")

	for _, d := range catalog.Dimensions() {
		fmt.Fprintf(&sb, "\n<b>%s. %s</b>\nNivel actual: %s\n",
			esc(d.ID), esc(d.Name), progression.CurrentAreaLevel(d.ID))

		for _, level := range entities.Levels {
			st := snap.Areas[d.ID][level]
			fmt.Fprintf(&sb, "%s %s %d/%d\n",
				padLevel(level),
				buildProgressBar(st.CompletedCount, st.TotalCount, progressBarLength),
				st.CompletedCount,
				st.TotalCount,
			)
		}
	}

	if snap.Sessions > 0 {
		fmt.Fprintf(&sb, "\nIntentos registrados: %d", snap.Sessions)
	}
	if snap.Excluded > 0 {
		fmt.Fprintf(&sb, "\nRegistros ignorados: %d", snap.Excluded)
	}

	return sb.String()
}

// renderArea renders the competence list of a dimension at its current level.
func renderArea(
	dim *entities.Dimension,
	comps []*entities.Competence,
	level entities.Level,
	progression *service.Progression,
	progress entities.ProgressMap,
) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s. %s</b>\nNivel actual: <b>%s</b>\n\n", esc(dim.ID), esc(dim.Name), level)

	for _, c := range comps {
		st := progress.Status(c.Code, level)
		fmt.Fprintf(&sb, "%s %s %s",
			competenceIcon(st, progression.IsPreviousCompetenceCompleted(c.Code, level)),
			esc(c.Code),
			esc(c.Name),
		)
		if st.Completed || st.InProgress {
			fmt.Fprintf(&sb, " · %d%%", st.ProgressPct)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderQuestion renders question idx of a session.
func renderQuestion(comp *entities.Competence, level entities.Level, s *entities.Session, idx int) string {
	q := s.Questions[idx]
	total := len(s.Questions)

	return fmt.Sprintf(
		"<b>%s %s</b> · %s\nPregunta %d de %d %s\n\n%s",
		esc(comp.Code),
		esc(comp.Name),
		level,
		idx+1,
		total,
		buildProgressBar(s.AnsweredCount(), total, total),
		esc(q.Text),
	)
}

// renderResult renders a completed attempt.
func renderResult(comp *entities.Competence, s *entities.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏁 <b>Resultado</b>\n%s %s · %s\n\n", esc(comp.Code), esc(comp.Name), s.NormalizedLevel())

	for i, q := range s.Questions {
		mark := "▫️"
		if a := s.Answers[i]; a != nil {
			if q.IsCorrect(*a) {
				mark = "✅"
			} else {
				mark = "❌"
			}
		}
		fmt.Fprintf(&sb, "%s %d. %s\n", mark, i+1, esc(q.Text))
	}

	fmt.Fprintf(&sb, "\nCorrectas: <b>%d/%d</b>\nPuntuación: <b>%d%%</b>\n\n",
		s.CorrectCount(), len(s.Questions), s.Score)

	if s.Passed {
		sb.WriteString(msgPassed)
	} else {
		fmt.Fprintf(&sb, msgFailed, entities.PassingCorrectCount, len(s.Questions))
	}

	return sb.String()
}

// renderSuggestions renders the next step of every dimension.
func renderSuggestions(suggestions []service.Suggestion, snap entities.ProgressSnapshot) string {
	var sb strings.Builder
	sb.WriteString("<b>🎯 Siguiente paso</b>\n")

	for _, s := range suggestions {
		fmt.Fprintf(&sb, "\n<b>%s. %s</b> · %s\n", esc(s.Dimension.ID), esc(s.Dimension.Name), s.Level)

		if s.Competence == "" {
			sb.WriteString(msgAreaCompleted + "\n")
			continue
		}

		st := snap.Progress.Status(s.Competence, s.Level)
		name := s.Competence
		for _, c := range s.Dimension.Competences {
			if c.Code == s.Competence {
				name = s.Competence + " " + c.Name
				break
			}
		}

		if st.InProgress {
			fmt.Fprintf(&sb, "Continúa %s (%d/%d)\n", esc(name), st.Answered, st.Total)
		} else {
			fmt.Fprintf(&sb, "Empieza %s\n", esc(name))
		}
	}

	return sb.String()
}

func competenceIcon(st entities.ProgressStatus, unlocked bool) string {
	switch {
	case st.Completed && st.Passed:
		return "✅"
	case st.Completed:
		return "☑️"
	case st.InProgress:
		return "⏳"
	case !unlocked:
		return "🔒"
	default:
		return "▫️"
	}
}

func padLevel(level entities.Level) string {
	name := level.String()
	if n := len([]rune(name)); n < 10 {
		name += strings.Repeat(" ", 10-n)
	}
	return "<code>" + name + "</code>"
}

// buildProgressBar creates ASCII progress bar.
func buildProgressBar(current, total, length int) string {
	if total <= 0 {
		return "[" + strings.Repeat("░", length) + "]"
	}

	filled := int(float64(current) / float64(total) * float64(length))
	if filled > length {
		filled = length
	}
	if filled < 0 {
		filled = 0
	}

	empty := length - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return fmt.Sprintf("[%s]", bar)
}
