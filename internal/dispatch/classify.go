package dispatch

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

// Kind partitions routable updates by the entry point they target.
type Kind int

const (
	KindCommand Kind = iota
	KindFreeText
	KindCallback
)

// String renders the kind for log fields.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindFreeText:
		return "free_text"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Classification is the result of inspecting one inbound update: the kind, the
// route key selecting a handler (empty for free text), and the request passed
// through to it.
type Classification struct {
	Kind     Kind
	RouteKey string
	Request  Request
}

// Classify turns a raw Telegram update into a Classification. It reports false
// for update types the dispatcher does not route (member changes, edits, media
// without text).
func Classify(update *models.Update) (Classification, bool) {
	if update == nil {
		return Classification{}, false
	}

	switch {
	case update.CallbackQuery != nil:
		return classifyCallback(update.CallbackQuery)
	case update.Message != nil:
		return classifyMessage(update.Message)
	default:
		return Classification{}, false
	}
}

func classifyMessage(msg *models.Message) (Classification, bool) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Classification{}, false
	}

	req := Request{
		UserID:    messageUserID(msg),
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
	}

	if !strings.HasPrefix(text, "/") {
		return Classification{Kind: KindFreeText, Request: req}, true
	}

	fields := strings.Fields(text)
	key := strings.TrimPrefix(fields[0], "/")
	// "/cmd@botname" addresses this bot explicitly in group chats.
	if at := strings.Index(key, "@"); at >= 0 {
		key = key[:at]
	}
	key = normalizeKey(key)
	if key == "" {
		return Classification{}, false
	}

	req.Args = fields[1:]
	return Classification{Kind: KindCommand, RouteKey: key, Request: req}, true
}

func classifyCallback(cb *models.CallbackQuery) (Classification, bool) {
	data := strings.TrimSpace(cb.Data)
	if data == "" {
		return Classification{}, false
	}

	key := data
	rest := ""
	if sep := strings.Index(data, ":"); sep >= 0 {
		key = data[:sep]
		rest = data[sep+1:]
	}
	key = normalizeKey(key)
	if key == "" {
		return Classification{}, false
	}

	req := Request{
		UserID:     cb.From.ID,
		ChatID:     callbackChatID(cb.Message),
		MessageID:  callbackMessageID(cb.Message),
		CallbackID: cb.ID,
		Data:       rest,
	}

	return Classification{Kind: KindCallback, RouteKey: key, Request: req}, true
}

func messageUserID(msg *models.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

func callbackChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}

func callbackMessageID(msg models.MaybeInaccessibleMessage) int {
	if msg.Type != models.MaybeInaccessibleMessageTypeMessage || msg.Message == nil {
		return 0
	}
	return msg.Message.ID
}
