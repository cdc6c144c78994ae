// Package meta holds the static informational commands.
package meta

import (
	"context"
	"errors"

	"tg_assistant_bot/internal/dispatch"
)

const startText = "Hi! I keep a small money ledger and fetch videos for you.\n\n" +
	"Try /add to record an entry, or just send me a video link."

const helpText = "Commands:\n" +
	"/add - record an income or expense\n" +
	"/balance - show your totals\n" +
	"/auto <url> - fetch a video from a link\n" +
	"/prayer [city] - today's prayer times\n" +
	"/cancel - abandon the current dialog\n\n" +
	"You can also just paste a video link."

type textSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// StartCommand greets new users.
type StartCommand struct {
	messenger textSender
}

// NewStartCommand constructs the /start handler.
func NewStartCommand(messenger textSender) (*StartCommand, error) {
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	return &StartCommand{messenger: messenger}, nil
}

func (c *StartCommand) Name() string      { return "start" }
func (c *StartCommand) Aliases() []string { return nil }

func (c *StartCommand) Execute(ctx context.Context, req dispatch.Request) error {
	return c.messenger.SendText(ctx, req.ChatID, startText)
}

// HelpCommand lists what the bot can do.
type HelpCommand struct {
	messenger textSender
}

// NewHelpCommand constructs the /help handler.
func NewHelpCommand(messenger textSender) (*HelpCommand, error) {
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	return &HelpCommand{messenger: messenger}, nil
}

func (c *HelpCommand) Name() string      { return "help" }
func (c *HelpCommand) Aliases() []string { return nil }

func (c *HelpCommand) Execute(ctx context.Context, req dispatch.Request) error {
	return c.messenger.SendText(ctx, req.ChatID, helpText)
}
