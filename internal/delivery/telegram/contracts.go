package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/service"
)

// BotAPI is the part of *tgbotapi.BotAPI the handler uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type UserService interface {
	EnsureUser(ctx context.Context, userID string, chatID int64, displayName string) (*entities.User, error)
}

type QuizService interface {
	Start(ctx context.Context, userID, competence string, level entities.Level) (*service.StartResult, error)
	Answer(ctx context.Context, userID, competence string, level entities.Level, questionIndex, answerIndex int) (*service.AnswerResult, error)
	Next(ctx context.Context, userID string) ([]service.Suggestion, entities.ProgressSnapshot, error)
	Progress(ctx context.Context, userID string) (*entities.Catalog, entities.ProgressSnapshot, error)
}
