package dispatch

import (
	"context"
	"sync"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/logging"
)

// CancelKey is the reserved meta-command: it routes to whichever command
// currently holds the caller's conversation instead of a normal lookup.
const CancelKey = "cancel"

// User-facing notices sent by the dispatcher itself. Handlers own their own
// wording; these cover only the boundary cases.
const (
	unknownActionNotice   = "Sorry, I don't recognize that action."
	internalErrorNotice   = "Something went wrong on my side. Please try again."
	nothingToCancelNotice = "There is nothing to cancel right now."
)

// ActiveConversations is the subset of the conversation store the dispatcher
// needs to resolve the /cancel meta-command.
type ActiveConversations interface {
	Active(userID int64) (command string, ok bool)
}

// Dispatcher routes classified updates to handler entry points. Updates from
// the same user are serialized; distinct users proceed in parallel. All
// handler failures and panics are contained here so the process keeps serving
// other users.
type Dispatcher struct {
	registry  *Registry
	active    ActiveConversations
	notifier  Notifier
	fallbacks []Fallback
	logger    *logrus.Entry

	mu    sync.Mutex
	users map[int64]*userSlot
}

type userSlot struct {
	mu   sync.Mutex
	refs int
}

// New constructs a Dispatcher. Fallbacks are tried in order for free-text
// messages no conversation consumed.
func New(registry *Registry, active ActiveConversations, notifier Notifier, logger *logrus.Entry, fallbacks ...Fallback) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Dispatcher{
		registry:  registry,
		active:    active,
		notifier:  notifier,
		fallbacks: fallbacks,
		logger:    logger,
		users:     make(map[int64]*userSlot),
	}
}

// Dispatch routes one inbound update. It never returns an error: failures are
// logged and reported to the user on a best-effort basis.
func (d *Dispatcher) Dispatch(ctx context.Context, update *models.Update) {
	if d == nil || d.registry == nil {
		return
	}

	c, ok := Classify(update)
	if !ok {
		return
	}
	if c.Request.UserID == 0 {
		// Channel posts and other anonymous updates have no conversation owner.
		return
	}

	unlock := d.lockUser(c.Request.UserID)
	defer unlock()
	defer d.recoverPanic(c)

	var err error
	switch c.Kind {
	case KindCommand:
		err = d.dispatchCommand(ctx, c)
	case KindCallback:
		err = d.dispatchCallback(ctx, c)
	case KindFreeText:
		err = d.dispatchFreeText(ctx, c)
	}

	if err != nil {
		d.reportFailure(ctx, c, err)
	}
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, c Classification) error {
	if c.RouteKey == CancelKey {
		return d.cancelActive(ctx, c.Request)
	}

	cmd, ok := d.registry.Resolve(c.RouteKey)
	if !ok {
		// Unknown commands are ignored without a user-visible reply.
		d.logger.WithFields(logging.Fields{
			"event":   "unknown_command",
			"command": c.RouteKey,
			"user_id": c.Request.UserID,
		}).Debug("ignoring unregistered command")
		return nil
	}

	return cmd.Execute(ctx, c.Request)
}

// cancelActive resolves whichever command owns the caller's conversation and
// runs its cancellation path.
func (d *Dispatcher) cancelActive(ctx context.Context, req Request) error {
	if d.active == nil {
		return d.notifyText(ctx, req.ChatID, nothingToCancelNotice)
	}

	owner, ok := d.active.Active(req.UserID)
	if !ok {
		return d.notifyText(ctx, req.ChatID, nothingToCancelNotice)
	}

	cmd, ok := d.registry.Resolve(owner)
	if !ok {
		d.logger.WithFields(logging.Fields{
			"event":   "cancel_owner_missing",
			"command": owner,
			"user_id": req.UserID,
		}).Warn("conversation owner is not registered")
		return d.notifyText(ctx, req.ChatID, nothingToCancelNotice)
	}

	canceler, ok := cmd.(Canceler)
	if !ok {
		d.logger.WithFields(logging.Fields{
			"event":   "cancel_unsupported",
			"command": owner,
			"user_id": req.UserID,
		}).Warn("conversation owner does not support cancellation")
		return d.notifyText(ctx, req.ChatID, nothingToCancelNotice)
	}

	return canceler.CancelConversation(ctx, req)
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, c Classification) error {
	cmd, ok := d.registry.Resolve(c.RouteKey)
	if !ok {
		return d.notifyCallback(ctx, c.Request.CallbackID, unknownActionNotice)
	}

	continuer, ok := cmd.(CallbackContinuer)
	if !ok {
		return d.notifyCallback(ctx, c.Request.CallbackID, unknownActionNotice)
	}

	return continuer.HandleCallback(ctx, c.Request)
}

func (d *Dispatcher) dispatchFreeText(ctx context.Context, c Classification) error {
	handled := false

	for _, cmd := range d.registry.Commands() {
		continuer, ok := cmd.(TextContinuer)
		if !ok {
			continue
		}

		consumed, err := continuer.HandleText(ctx, c.Request)
		if err != nil {
			return err
		}
		handled = handled || consumed
	}

	if handled {
		return nil
	}

	for _, fallback := range d.fallbacks {
		consumed, err := fallback.HandleFreeText(ctx, c.Request)
		if err != nil {
			return err
		}
		if consumed {
			return nil
		}
	}

	return nil
}

func (d *Dispatcher) reportFailure(ctx context.Context, c Classification, err error) {
	d.logger.WithFields(logging.Fields{
		"event":   "handler_error",
		"kind":    c.Kind.String(),
		"command": c.RouteKey,
		"user_id": c.Request.UserID,
		"chat_id": c.Request.ChatID,
	}).WithError(err).Error("handler failed")

	if c.Request.CallbackID != "" {
		_ = d.notifyCallback(ctx, c.Request.CallbackID, internalErrorNotice)
		return
	}
	_ = d.notifyText(ctx, c.Request.ChatID, internalErrorNotice)
}

func (d *Dispatcher) recoverPanic(c Classification) {
	r := recover()
	if r == nil {
		return
	}

	d.logger.WithFields(logging.Fields{
		"event":   "handler_panic",
		"kind":    c.Kind.String(),
		"command": c.RouteKey,
		"user_id": c.Request.UserID,
		"panic":   r,
	}).Error("recovered handler panic")

	_ = d.notifyText(context.Background(), c.Request.ChatID, internalErrorNotice)
}

func (d *Dispatcher) notifyText(ctx context.Context, chatID int64, text string) error {
	if d.notifier == nil || chatID == 0 {
		return nil
	}
	return d.notifier.SendText(ctx, chatID, text)
}

func (d *Dispatcher) notifyCallback(ctx context.Context, callbackID, text string) error {
	if d.notifier == nil || callbackID == "" {
		return nil
	}
	return d.notifier.AnswerCallback(ctx, callbackID, text)
}

// lockUser serializes update handling per user while letting distinct users
// proceed concurrently. Slots are reference-counted so the map does not grow
// with every user ever seen.
func (d *Dispatcher) lockUser(userID int64) func() {
	d.mu.Lock()
	slot, ok := d.users[userID]
	if !ok {
		slot = &userSlot{}
		d.users[userID] = slot
	}
	slot.refs++
	d.mu.Unlock()

	slot.mu.Lock()

	return func() {
		slot.mu.Unlock()

		d.mu.Lock()
		slot.refs--
		if slot.refs == 0 {
			delete(d.users, userID)
		}
		d.mu.Unlock()
	}
}
