package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/service"
)

// buildDimensionsKeyboard builds one button per area with its current level.
func buildDimensionsKeyboard(catalog *entities.Catalog, progression *service.Progression) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(catalog.Dimensions())+1)
	for _, d := range catalog.Dimensions() {
		label := fmt.Sprintf("%s. %s · %s", d.ID, d.Name, progression.CurrentAreaLevel(d.ID))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, buildAreaCallback(d.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎯 Siguiente paso", buildNextCallback()),
		tgbotapi.NewInlineKeyboardButtonData("📊 Mi progreso", buildProgressCallback()),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildAreaKeyboard builds the competence buttons of an area. Locked
// competences get no button.
func buildAreaKeyboard(
	comps []*entities.Competence,
	level entities.Level,
	progression *service.Progression,
	progress entities.ProgressMap,
) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(comps)+1)
	for _, c := range comps {
		unlocked := progression.IsPreviousCompetenceCompleted(c.Code, level)
		if !unlocked {
			continue
		}
		label := fmt.Sprintf("%s %s %s", competenceIcon(progress.Status(c.Code, level), unlocked), c.Code, c.Name)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, buildQuizStartCallback(c.Code, level)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📊 Mi progreso", buildProgressCallback()),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildQuestionKeyboard builds one button per answer option.
func buildQuestionKeyboard(competence string, level entities.Level, questionIndex int, options []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for i, opt := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, buildQuizAnswerCallback(competence, level, questionIndex, i)),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildResultKeyboard builds keyboard for quiz results screen.
func buildResultKeyboard(comp *entities.Competence, level entities.Level, passed bool) tgbotapi.InlineKeyboardMarkup {
	var first []tgbotapi.InlineKeyboardButton
	if passed {
		first = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Siguiente paso", buildNextCallback()),
		)
	} else {
		first = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📚 Volver al área", buildAreaCallback(comp.Dimension)),
		)
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		first,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Mi progreso", buildProgressCallback()),
		),
	)
}

// buildProgressKeyboard builds keyboard for progress screen.
func buildProgressKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Actualizar", buildProgressCallback()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Siguiente paso", buildNextCallback()),
		),
	)
}

// buildSuggestionsKeyboard builds a start button per suggested competence.
func buildSuggestionsKeyboard(suggestions []service.Suggestion) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(suggestions)+1)
	for _, s := range suggestions {
		if s.Competence == "" {
			continue
		}
		label := fmt.Sprintf("▶️ %s · %s", s.Competence, s.Level)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, buildQuizStartCallback(s.Competence, s.Level)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📊 Mi progreso", buildProgressCallback()),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
