package telegram

import (
	"context"
	"fmt"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/service"
)

func (h *Handler) handleStart(userID, name string, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		catalog, snap, err := h.quizService.Progress(ctx, userID)
		if err != nil {
			return err
		}

		progression := service.NewProgression(catalog, snap.Progress)
		kb := buildDimensionsKeyboard(catalog, progression)
		h.reply(chatID, messageID, fmt.Sprintf(msgWelcome, esc(name)), &kb)
		return nil
	}
}

func (h *Handler) handleProgress(userID string, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		catalog, snap, err := h.quizService.Progress(ctx, userID)
		if err != nil {
			return err
		}

		kb := buildProgressKeyboard()
		h.reply(chatID, messageID, renderProgress(catalog, snap), &kb)
		return nil
	}
}

func (h *Handler) handleNext(userID string, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		suggestions, snap, err := h.quizService.Next(ctx, userID)
		if err != nil {
			return err
		}

		kb := buildSuggestionsKeyboard(suggestions)
		h.reply(chatID, messageID, renderSuggestions(suggestions, snap), &kb)
		return nil
	}
}

func (h *Handler) handleArea(userID, dimensionID string, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		catalog, snap, err := h.quizService.Progress(ctx, userID)
		if err != nil {
			return err
		}

		dim, ok := catalog.Dimension(dimensionID)
		if !ok {
			return fmt.Errorf("area %s: %w", dimensionID, service.ErrUnknownCompetence)
		}

		progression := service.NewProgression(catalog, snap.Progress)
		level := progression.CurrentAreaLevel(dim.ID)
		comps := catalog.CompetencesOf(dim.ID)

		kb := buildAreaKeyboard(comps, level, progression, snap.Progress)
		h.reply(chatID, messageID, renderArea(dim, comps, level, progression, snap.Progress), &kb)
		return nil
	}
}

func (h *Handler) handleQuizStart(userID string, qc quizCallback, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		res, err := h.quizService.Start(ctx, userID, qc.Competence, qc.Level)
		if err != nil {
			return err
		}

		if res.AlreadyCompleted {
			kb := buildResultKeyboard(res.Competence, qc.Level, res.Session.Passed)
			h.reply(chatID, messageID, renderResult(res.Competence, res.Session), &kb)
			return nil
		}

		h.showQuestion(chatID, messageID, res.Competence, qc.Level, res.Session, "")
		return nil
	}
}

func (h *Handler) handleQuizAnswer(userID string, qc quizCallback, messageID int) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		res, err := h.quizService.Answer(ctx, userID, qc.Competence, qc.Level, qc.QuestionIndex, qc.AnswerIndex)
		if err != nil {
			return err
		}

		comp := res.Competence
		if res.Finished {
			kb := buildResultKeyboard(comp, qc.Level, res.Session.Passed)
			h.reply(chatID, messageID, renderResult(comp, res.Session), &kb)
			return nil
		}

		feedback := msgAnswerWrong
		switch {
		case res.Duplicate:
			feedback = msgAnswerDuplicate
		case res.Correct:
			feedback = msgAnswerCorrect
		}

		h.showQuestion(chatID, messageID, comp, qc.Level, res.Session, feedback)
		return nil
	}
}

func (h *Handler) showQuestion(
	chatID int64,
	messageID int,
	comp *entities.Competence,
	level entities.Level,
	session *entities.Session,
	feedback string,
) {
	idx := session.CurrentQuestionIndex
	if idx < 0 || idx >= len(session.Questions) || session.Answers[idx] != nil {
		idx = session.NextUnansweredIndex(0)
	}
	if idx >= len(session.Questions) {
		return
	}

	text := renderQuestion(comp, level, session, idx)
	if feedback != "" {
		text = feedback + "\n\n" + text
	}

	kb := buildQuestionKeyboard(comp.Code, level, idx, session.Questions[idx].Options)
	h.reply(chatID, messageID, text, &kb)
}
