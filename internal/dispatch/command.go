// Package dispatch routes classified Telegram updates to registered command
// handlers and owns the lifecycle of multi-step conversations.
package dispatch

import "context"

// Command is implemented by every handler the bot exposes as /<name>.
type Command interface {
	// Name returns the primary route key, matched case-insensitively.
	Name() string
	// Aliases returns additional route keys resolving to this command.
	Aliases() []string
	// Execute handles a fresh /<name> invocation.
	Execute(ctx context.Context, req Request) error
}

// TextContinuer is implemented by commands that consume free-text input while
// they hold an active conversation for the sender. HandleText reports whether
// the message was consumed as a conversation step; a command with no active
// conversation for the sender must return (false, nil) immediately.
type TextContinuer interface {
	HandleText(ctx context.Context, req Request) (bool, error)
}

// CallbackContinuer is implemented by commands that react to inline button
// presses routed by their callback-data prefix.
type CallbackContinuer interface {
	HandleCallback(ctx context.Context, req Request) error
}

// Canceler is implemented by commands whose conversations can be abandoned via
// the reserved /cancel meta-command.
type Canceler interface {
	CancelConversation(ctx context.Context, req Request) error
}

// Fallback receives free-text messages that no conversation consumed. The
// dispatcher tries fallbacks in registration order and stops at the first one
// that reports the message handled.
type Fallback interface {
	HandleFreeText(ctx context.Context, req Request) (bool, error)
}

// Notifier is the minimal messaging surface the dispatcher needs for
// best-effort user notices. Handlers carry their own richer adapters.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Request carries one classified inbound update into a handler.
type Request struct {
	UserID     int64
	ChatID     int64
	MessageID  int
	CallbackID string

	// Text is the raw message text for free-text updates.
	Text string
	// Args holds whitespace-split tokens following a command invocation.
	Args []string
	// Data is the callback payload with the route-key prefix stripped.
	Data string
}
