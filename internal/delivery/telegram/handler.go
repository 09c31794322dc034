package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// userIDPrefix namespaces Telegram ids inside the shared identity space.
const userIDPrefix = "tg:"

type Handler struct {
	bot         BotAPI
	logger      *zap.Logger
	quizService QuizService
	userService UserService
}

func NewHandler(
	bot BotAPI,
	logger *zap.Logger,
	quizService QuizService,
	userService UserService,
) *Handler {
	return &Handler{
		bot:         bot,
		logger:      logger,
		quizService: quizService,
		userService: userService,
	}
}

// RegisterCommands publishes the command list shown in the Telegram menu.
func (h *Handler) RegisterCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Elegir un área"},
		tgbotapi.BotCommand{Command: "next", Description: "Qué hacer a continuación"},
		tgbotapi.BotCommand{Command: "progress", Description: "Ver mi progreso"},
		tgbotapi.BotCommand{Command: "help", Description: "Ayuda"},
	)
	_, err := h.bot.Request(cfg)
	return err
}

func (h *Handler) Run(ctx context.Context) error {
	h.logger.Info("telegram handler started")
	defer h.logger.Info("telegram handler stopped")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)
	defer h.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			h.handleUpdate(ctx, update)
		}
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.logger.Debug("callback received",
			zap.Int64("user_id", update.CallbackQuery.From.ID),
			zap.String("data", update.CallbackQuery.Data),
		)
		h.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		h.logger.Debug("update without message and callback")
		return
	}

	h.logger.Debug("update received",
		zap.Int64("chat_id", update.Message.Chat.ID),
		zap.String("text", update.Message.Text),
	)

	from := update.Message.From
	userID := userIDFor(from.ID)
	chatID := update.Message.Chat.ID

	if _, err := h.userService.EnsureUser(ctx, userID, chatID, displayName(from)); err != nil {
		h.logger.Error("failed to ensure user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if !update.Message.IsCommand() {
		h.send(newHTMLMessage(chatID, msgHelp))
		return
	}

	switch update.Message.Command() {
	case "start":
		_ = h.withErrorHandling(h.handleStart(userID, displayName(from), 0))(ctx, chatID)
	case "progress":
		_ = h.withErrorHandling(h.handleProgress(userID, 0))(ctx, chatID)
	case "next":
		_ = h.withErrorHandling(h.handleNext(userID, 0))(ctx, chatID)
	case "help":
		h.send(newHTMLMessage(chatID, msgHelp))
	default:
		h.send(newHTMLMessage(chatID, msgUnknownCommand))
	}
}

// reply sends text as a new message, or edits messageID in place when set.
func (h *Handler) reply(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		msg := newHTMLMessage(chatID, text)
		if kb != nil {
			msg.ReplyMarkup = *kb
		}
		h.send(msg)
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb
	h.send(edit)
}

func (h *Handler) sendError(chatID int64, text string) {
	h.send(newHTMLMessage(chatID, text))
}

func (h *Handler) send(c tgbotapi.Chattable) {
	if _, err := h.bot.Send(c); err != nil {
		h.logger.Error("failed to send telegram message",
			zap.Error(err),
		)
	}
}

func userIDFor(telegramID int64) string {
	return userIDPrefix + strconv.FormatInt(telegramID, 10)
}

func displayName(u *tgbotapi.User) string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.UserName != "":
		return u.UserName
	default:
		return "estudiante"
	}
}
