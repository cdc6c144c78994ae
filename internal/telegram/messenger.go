package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tg_assistant_bot/internal/logging"
	"tg_assistant_bot/internal/wizard"
)

// Telegram allows roughly 30 messages per second bot-wide; stay under it with
// a small burst for keyboard edits that come in pairs.
const (
	sendRate  = 25
	sendBurst = 5
)

// BotMessenger is the outbound messaging adapter. It satisfies the messaging
// interfaces of the dispatcher and the wizard runner, throttling all calls
// through one shared limiter.
type BotMessenger struct {
	api     botRunner
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// NewBotMessenger constructs a BotMessenger over the given bot API.
func NewBotMessenger(api botRunner, logger *logrus.Entry) *BotMessenger {
	if logger == nil {
		logger = logging.Logger()
	}

	return &BotMessenger{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		logger:  logger,
	}
}

// SendText sends a plain text message.
func (m *BotMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	_, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendPrompt sends a message with an inline keyboard and returns its message
// id so the wizard can edit it in place.
func (m *BotMessenger) SendPrompt(ctx context.Context, chatID int64, text string, keyboard [][]wizard.Button) (int, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}

	msg, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: inlineKeyboard(keyboard),
	})
	if err != nil {
		return 0, fmt.Errorf("send prompt: %w", err)
	}
	return msg.ID, nil
}

// EditPrompt replaces the text and keyboard of an existing message.
func (m *BotMessenger) EditPrompt(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]wizard.Button) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	_, err := m.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: inlineKeyboard(keyboard),
	})
	if err != nil {
		return fmt.Errorf("edit prompt: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, dismissing the client spinner.
// An empty text is a bare acknowledgement.
func (m *BotMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return errors.New("callback id is required")
	}
	if err := m.wait(ctx); err != nil {
		return err
	}

	_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// SendVideo sends a video by remote URL with an optional caption.
func (m *BotMessenger) SendVideo(ctx context.Context, chatID int64, videoURL, caption string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	_, err := m.api.SendVideo(ctx, &bot.SendVideoParams{
		ChatID:  chatID,
		Video:   &models.InputFileString{Data: videoURL},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// DeleteMessage removes a message, used to clean up progress notices.
func (m *BotMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	_, err := m.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (m *BotMessenger) wait(ctx context.Context) error {
	if m == nil || m.api == nil {
		return errors.New("messenger is not initialized")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// inlineKeyboard converts wizard buttons into Telegram reply markup. A nil
// keyboard yields nil markup so terminal texts drop the buttons entirely.
func inlineKeyboard(keyboard [][]wizard.Button) models.ReplyMarkup {
	if len(keyboard) == 0 {
		return nil
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Label,
				CallbackData: b.Data,
			})
		}
		rows = append(rows, buttons)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
