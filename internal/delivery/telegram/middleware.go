package telegram

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

type HandlerFunc func(ctx context.Context, chatID int64) error

// withErrorHandling logs a failed handler and tells the user what went
// wrong. Store outages and unexpected errors are logged as errors, user
// mistakes such as locked competences only at debug level.
func (h *Handler) withErrorHandling(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, chatID int64) error {
		err := fn(ctx, chatID)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}

		text := errorMessage(err)
		if text == msgInternalError || errors.Is(err, entities.ErrStoreUnavailable) {
			h.logger.Error("handle error",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		} else {
			h.logger.Debug("request rejected",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		}

		h.sendError(chatID, text)
		return nil
	}
}
