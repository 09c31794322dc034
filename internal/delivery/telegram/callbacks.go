package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Remove the user's "clock" whatever happens next.
	defer h.answerCallback(cb.ID)

	if cb.Message == nil || cb.From == nil {
		return
	}

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := userIDFor(cb.From.ID)
	data := decodeCallback(cb.Data)

	var fn HandlerFunc
	switch data.Action {
	case actionProgress:
		fn = h.handleProgress(userID, messageID)
	case actionNext:
		fn = h.handleNext(userID, messageID)
	case actionArea:
		if len(data.Params) != 1 {
			h.logger.Warn("invalid area callback", zap.String("data", cb.Data))
			return
		}
		fn = h.handleArea(userID, data.Params[0], messageID)
	case actionQuiz:
		qc, err := parseQuizCallback(data)
		if err != nil {
			h.logger.Warn("invalid quiz callback", zap.String("data", cb.Data))
			return
		}
		if qc.Sub == quizStart {
			fn = h.handleQuizStart(userID, qc, messageID)
		} else {
			fn = h.handleQuizAnswer(userID, qc, messageID)
		}
	default:
		h.logger.Debug("unknown callback action", zap.String("data", cb.Data))
		return
	}

	_ = h.withErrorHandling(fn)(ctx, chatID)
}

func (h *Handler) answerCallback(id string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(id, "")); err != nil {
		h.logger.Debug("callback answer error", zap.Error(err))
	}
}
