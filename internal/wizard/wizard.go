// Package wizard implements the shared step-machine contract multi-step
// commands follow: prompt, collect, confirm, persist. A wizard renders its
// conversational UI by editing one tracked message in place; the current step
// recorded in the conversation store is the sole source of truth for what
// input is expected, so stale or duplicated deliveries are ignored safely.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/conversation"
	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/logging"
)

// Reserved choice values interpreted by the runner before any step logic.
const (
	ValueBack   = "back"
	ValueCancel = "cancel"
	ValueSave   = "save"
)

// Notices rendered by the runner.
const (
	expiredNotice       = "This menu has expired. Send the command again to start over."
	cancelledAck        = "Cancelled."
	savedAck            = "Saved."
	saveFailedNotice    = "Could not save your entry. Your answers are kept, press Save to retry."
	saveAmbiguousNotice = "Could not confirm whether the save succeeded. Please check before retrying."
)

// InputKind is a bitmask of input types a step accepts.
type InputKind int

const (
	InputText InputKind = 1 << iota
	InputChoice
)

// Choice is one inline button offered by a step. Value is stored into fields
// when picked, or one of the reserved runner values.
type Choice struct {
	Label string
	Value string
}

// Prompt is what a step renders: message text plus optional choice rows.
type Prompt struct {
	Text    string
	Choices [][]Choice
}

// Button is a fully encoded inline button handed to the Messenger.
type Button struct {
	Label string
	Data  string
}

// Step is one named stage of a wizard.
type Step struct {
	Name    string
	Accepts InputKind
	// Prompt renders the step from the fields collected so far. Prompts are
	// reconstructed on every render, including backward navigation.
	Prompt func(fields map[string]any) Prompt
	// Apply validates one input and returns the field updates it produces.
	// Return a *ValidationError to re-render the step with an annotation.
	Apply func(input string, fields map[string]any) (map[string]any, error)
	// Next picks the following step from the accumulated fields. Nil or an
	// empty result keeps the conversation on the current step.
	Next func(fields map[string]any) string
}

// Definition declares a complete wizard for one command.
type Definition struct {
	// Command is the route key, used as the callback-data prefix.
	Command string
	Steps   []Step
	// Commit performs the terminal side effect. The conversation is deleted
	// only after Commit succeeds; on failure it is kept so the user can retry.
	Commit func(ctx context.Context, userID int64, fields map[string]any) error
	// DoneText renders the terminal confirmation after a successful commit.
	DoneText func(fields map[string]any) string
	// CancelledText replaces the prompt when the user cancels.
	CancelledText string
}

// ValidationError marks input that fails a step's constraints. The step is
// re-rendered with the message; the conversation is neither advanced nor
// destroyed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Messenger is the messaging surface the runner needs to drive a wizard.
type Messenger interface {
	SendPrompt(ctx context.Context, chatID int64, text string, keyboard [][]Button) (int, error)
	EditPrompt(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Runner drives one wizard definition against the conversation store.
type Runner struct {
	def       Definition
	steps     map[string]*Step
	first     string
	store     *conversation.Store
	messenger Messenger
	logger    *logrus.Entry
}

// NewRunner validates the definition and constructs a Runner.
func NewRunner(def Definition, store *conversation.Store, messenger Messenger, logger *logrus.Entry) (*Runner, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if strings.TrimSpace(def.Command) == "" {
		return nil, errors.New("wizard command is required")
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("wizard %q has no steps", def.Command)
	}
	if def.Commit == nil {
		return nil, fmt.Errorf("wizard %q has no commit", def.Command)
	}
	if logger == nil {
		logger = logging.Logger()
	}

	steps := make(map[string]*Step, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if strings.TrimSpace(step.Name) == "" {
			return nil, fmt.Errorf("wizard %q has an unnamed step", def.Command)
		}
		if step.Prompt == nil {
			return nil, fmt.Errorf("wizard %q step %q has no prompt", def.Command, step.Name)
		}
		if _, dup := steps[step.Name]; dup {
			return nil, fmt.Errorf("wizard %q declares step %q twice", def.Command, step.Name)
		}
		steps[step.Name] = step
	}

	return &Runner{
		def:       def,
		steps:     steps,
		first:     def.Steps[0].Name,
		store:     store,
		messenger: messenger,
		logger:    logger,
	}, nil
}

// Begin starts a fresh conversation at the first step, discarding any
// previous one for the same user, and sends the initial prompt.
func (r *Runner) Begin(ctx context.Context, req dispatch.Request) error {
	entry := r.store.Start(req.UserID, r.def.Command, r.first, req.ChatID)

	text, keyboard := r.render(entry, r.steps[r.first], "")
	messageID, err := r.messenger.SendPrompt(ctx, req.ChatID, text, keyboard)
	if err != nil {
		r.store.Cancel(req.UserID, r.def.Command)
		return fmt.Errorf("send %s prompt: %w", r.def.Command, err)
	}

	if err := r.store.SetMessage(req.UserID, r.def.Command, req.ChatID, messageID); err != nil {
		return fmt.Errorf("track %s prompt message: %w", r.def.Command, err)
	}

	return nil
}

// HandleText feeds a free-text message into the user's conversation. It
// reports false immediately when this wizard holds no conversation for the
// sender.
func (r *Runner) HandleText(ctx context.Context, req dispatch.Request) (bool, error) {
	entry, ok := r.store.Get(req.UserID, r.def.Command)
	if !ok {
		return false, nil
	}

	step := r.steps[entry.Step]
	if step == nil {
		// Corrupt state; drop it rather than wedge the user.
		r.store.Cancel(req.UserID, r.def.Command)
		r.logger.WithFields(logging.Fields{
			"event":   "wizard_unknown_step",
			"command": r.def.Command,
			"step":    entry.Step,
			"user_id": req.UserID,
		}).Warn("dropping conversation at unknown step")
		return false, nil
	}

	if step.Accepts&InputText == 0 {
		// Text while a button step is active: consumed but ignored.
		return true, nil
	}

	return true, r.applyInput(ctx, req, entry, step, strings.TrimSpace(req.Text))
}

// HandleCallback feeds a button press into the user's conversation. Payloads
// are step-tagged, so a duplicate or stale delivery whose step no longer
// matches the current one is acknowledged and dropped without advancing.
func (r *Runner) HandleCallback(ctx context.Context, req dispatch.Request) error {
	entry, ok := r.store.Get(req.UserID, r.def.Command)
	if !ok {
		return r.answer(ctx, req.CallbackID, expiredNotice)
	}

	stepName, value := splitData(req.Data)
	if stepName != entry.Step {
		return r.answer(ctx, req.CallbackID, "")
	}

	step := r.steps[stepName]
	if step == nil {
		r.store.Cancel(req.UserID, r.def.Command)
		return r.answer(ctx, req.CallbackID, expiredNotice)
	}

	switch value {
	case ValueCancel:
		return r.cancel(ctx, req, entry)
	case ValueBack:
		return r.back(ctx, req)
	case ValueSave:
		return r.commit(ctx, req, entry)
	default:
		if step.Accepts&InputChoice == 0 {
			return r.answer(ctx, req.CallbackID, "")
		}
		if err := r.answer(ctx, req.CallbackID, ""); err != nil {
			r.logger.WithError(err).WithField("event", "wizard_ack_failed").Warn("could not acknowledge callback")
		}
		return r.applyInput(ctx, req, entry, step, value)
	}
}

// Cancel abandons the user's conversation, replacing the tracked prompt with
// the cancelled notice. Used both by the wizard's own Cancel button path via
// HandleCallback and by the /cancel meta-command.
func (r *Runner) Cancel(ctx context.Context, req dispatch.Request) error {
	entry, ok := r.store.Get(req.UserID, r.def.Command)
	if !ok {
		return nil
	}
	return r.cancel(ctx, req, entry)
}

// Owns reports whether this wizard currently holds a conversation for the
// user.
func (r *Runner) Owns(userID int64) bool {
	_, ok := r.store.Get(userID, r.def.Command)
	return ok
}

func (r *Runner) applyInput(ctx context.Context, req dispatch.Request, entry conversation.Entry, step *Step, input string) error {
	if step.Apply == nil {
		return nil
	}

	updates, err := step.Apply(input, entry.Fields)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			return r.rerender(ctx, entry, step, invalid.Msg)
		}
		return fmt.Errorf("%s step %s: %w", r.def.Command, step.Name, err)
	}

	merged := entry.Fields
	for k, v := range updates {
		merged[k] = v
	}

	nextName := entry.Step
	if step.Next != nil {
		if n := step.Next(merged); n != "" {
			nextName = n
		}
	}

	next := r.steps[nextName]
	if next == nil {
		return fmt.Errorf("%s step %s advances to unknown step %q", r.def.Command, step.Name, nextName)
	}

	advanced, err := r.store.Advance(req.UserID, r.def.Command, nextName, updates)
	if err != nil {
		return fmt.Errorf("advance %s conversation: %w", r.def.Command, err)
	}

	text, keyboard := r.render(advanced, next, "")
	return r.edit(ctx, advanced, text, keyboard)
}

func (r *Runner) back(ctx context.Context, req dispatch.Request) error {
	prev, cancelled, err := r.store.Back(req.UserID, r.def.Command)
	if err != nil {
		return r.answer(ctx, req.CallbackID, expiredNotice)
	}
	if cancelled {
		if err := r.edit(ctx, conversation.Entry{ChatID: req.ChatID, MessageID: req.MessageID}, r.cancelledText(), nil); err != nil {
			return err
		}
		return r.answer(ctx, req.CallbackID, cancelledAck)
	}

	step := r.steps[prev.Step]
	if step == nil {
		r.store.Cancel(req.UserID, r.def.Command)
		return r.answer(ctx, req.CallbackID, expiredNotice)
	}

	text, keyboard := r.render(prev, step, "")
	if err := r.edit(ctx, prev, text, keyboard); err != nil {
		return err
	}
	return r.answer(ctx, req.CallbackID, "")
}

func (r *Runner) cancel(ctx context.Context, req dispatch.Request, entry conversation.Entry) error {
	r.store.Cancel(req.UserID, r.def.Command)

	if err := r.edit(ctx, entry, r.cancelledText(), nil); err != nil {
		return err
	}
	return r.answer(ctx, req.CallbackID, cancelledAck)
}

func (r *Runner) commit(ctx context.Context, req dispatch.Request, entry conversation.Entry) error {
	err := r.def.Commit(ctx, req.UserID, entry.Fields)
	if err != nil {
		notice := saveFailedNotice
		if errors.Is(err, context.DeadlineExceeded) {
			// The commit may or may not have landed; surface the ambiguity
			// instead of silently retrying.
			notice = saveAmbiguousNotice
		}

		r.logger.WithFields(logging.Fields{
			"event":   "wizard_commit_failed",
			"command": r.def.Command,
			"user_id": req.UserID,
		}).WithError(err).Error("wizard commit failed")

		step := r.steps[entry.Step]
		if step != nil {
			text, keyboard := r.render(entry, step, notice)
			if editErr := r.edit(ctx, entry, text, keyboard); editErr != nil {
				return editErr
			}
		}
		return r.answer(ctx, req.CallbackID, notice)
	}

	// Delete only after the side effect landed.
	r.store.Cancel(req.UserID, r.def.Command)

	done := savedAck
	if r.def.DoneText != nil {
		done = r.def.DoneText(entry.Fields)
	}
	if err := r.edit(ctx, entry, done, nil); err != nil {
		return err
	}
	return r.answer(ctx, req.CallbackID, savedAck)
}

func (r *Runner) rerender(ctx context.Context, entry conversation.Entry, step *Step, annotation string) error {
	text, keyboard := r.render(entry, step, annotation)
	return r.edit(ctx, entry, text, keyboard)
}

// render reconstructs the prompt for a step from the accumulated fields and
// encodes its choices as step-tagged callback payloads.
func (r *Runner) render(entry conversation.Entry, step *Step, annotation string) (string, [][]Button) {
	prompt := step.Prompt(entry.Fields)

	text := prompt.Text
	if annotation != "" {
		text = "⚠️ " + annotation + "\n\n" + text
	}

	keyboard := make([][]Button, 0, len(prompt.Choices)+1)
	for _, row := range prompt.Choices {
		buttons := make([]Button, 0, len(row))
		for _, choice := range row {
			buttons = append(buttons, Button{
				Label: choice.Label,
				Data:  r.encode(step.Name, choice.Value),
			})
		}
		keyboard = append(keyboard, buttons)
	}

	nav := make([]Button, 0, 2)
	if len(entry.History) > 0 {
		nav = append(nav, Button{Label: "« Back", Data: r.encode(step.Name, ValueBack)})
	}
	nav = append(nav, Button{Label: "Cancel", Data: r.encode(step.Name, ValueCancel)})
	keyboard = append(keyboard, nav)

	return text, keyboard
}

func (r *Runner) edit(ctx context.Context, entry conversation.Entry, text string, keyboard [][]Button) error {
	if entry.MessageID == 0 {
		_, err := r.messenger.SendPrompt(ctx, entry.ChatID, text, keyboard)
		if err != nil {
			return fmt.Errorf("send %s prompt: %w", r.def.Command, err)
		}
		return nil
	}

	if err := r.messenger.EditPrompt(ctx, entry.ChatID, entry.MessageID, text, keyboard); err != nil {
		return fmt.Errorf("edit %s prompt: %w", r.def.Command, err)
	}
	return nil
}

func (r *Runner) answer(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return r.messenger.AnswerCallback(ctx, callbackID, text)
}

func (r *Runner) encode(stepName, value string) string {
	return r.def.Command + ":" + stepName + ":" + value
}

func (r *Runner) cancelledText() string {
	if r.def.CancelledText != "" {
		return r.def.CancelledText
	}
	return cancelledAck
}

// splitData parses a callback payload (after the command prefix) into the
// step tag and the chosen value.
func splitData(data string) (step, value string) {
	if sep := strings.Index(data, ":"); sep >= 0 {
		return data[:sep], data[sep+1:]
	}
	return data, ""
}
