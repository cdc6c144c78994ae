// Package telegram hosts the Telegram client and the outbound messenger the
// dispatcher and wizards speak through.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/config"
	"tg_assistant_bot/internal/logging"
)

// UpdateHandler receives every routable inbound update. Implemented by the
// dispatcher.
type UpdateHandler interface {
	Dispatch(ctx context.Context, update *models.Update)
}

type botRunner interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance. The update handler is attached after
// construction so the messenger built on this client can be wired into the
// dispatcher first.
type Client struct {
	bot     botRunner
	logger  *logrus.Entry
	handler UpdateHandler
}

// NewClient initializes the Telegram bot with long polling.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.onUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	return client, nil
}

// SetHandler attaches the update handler. Must be called before Start; updates
// arriving without a handler are logged and dropped.
func (c *Client) SetHandler(handler UpdateHandler) {
	c.handler = handler
}

// Messenger returns the outbound messaging adapter backed by this client.
func (c *Client) Messenger() *BotMessenger {
	return NewBotMessenger(c.bot, c.logger)
}

// Start begins receiving updates via long polling until the context is
// canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	if c.handler == nil {
		c.logger.WithField("event", "telegram_update_dropped").Warn("update received before handler was attached")
		return
	}

	c.logger.WithFields(updateFields(update)).Debug("telegram update received")
	c.handler.Dispatch(ctx, update)
}

func updateFields(update *models.Update) logging.Fields {
	fields := logging.Fields{"event": "telegram_update"}

	switch {
	case update.Message != nil:
		fields["update_type"] = "message"
		fields["chat_id"] = update.Message.Chat.ID
		if update.Message.From != nil {
			fields["user_id"] = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		fields["update_type"] = "callback_query"
		fields["user_id"] = update.CallbackQuery.From.ID
		fields["data"] = update.CallbackQuery.Data
	default:
		fields["update_type"] = "unknown"
	}

	return fields
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
