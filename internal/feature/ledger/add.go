// Package ledger implements the money-entry commands: the /add wizard and the
// /balance summary.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/conversation"
	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/domain"
	"tg_assistant_bot/internal/wizard"
)

const commitTimeout = 5 * time.Second

type entryAppender interface {
	Append(ctx context.Context, entry domain.Entry) (domain.Entry, error)
}

// AddCommand drives the add-entry wizard: pick a type, enter an amount and an
// optional note, confirm, persist.
type AddCommand struct {
	runner *wizard.Runner
}

// NewAddCommand builds the wizard definition and its runner.
func NewAddCommand(entries entryAppender, store *conversation.Store, messenger wizard.Messenger, logger *logrus.Entry) (*AddCommand, error) {
	if entries == nil {
		return nil, errors.New("entry repository is required")
	}

	def := wizard.Definition{
		Command: "add",
		Steps: []wizard.Step{
			{
				Name:    "selectType",
				Accepts: wizard.InputChoice,
				Prompt: func(map[string]any) wizard.Prompt {
					return wizard.Prompt{
						Text: "What would you like to record?",
						Choices: [][]wizard.Choice{{
							{Label: "📈 Income", Value: domain.EntryIncome},
							{Label: "📉 Expense", Value: domain.EntryExpense},
						}},
					}
				},
				Apply: func(input string, _ map[string]any) (map[string]any, error) {
					if !domain.ValidEntryType(input) {
						return nil, wizard.Invalid("pick Income or Expense")
					}
					return map[string]any{"type": input}, nil
				},
				Next: func(map[string]any) string { return "enterAmount" },
			},
			{
				Name:    "enterAmount",
				Accepts: wizard.InputText,
				Prompt: func(fields map[string]any) wizard.Prompt {
					return wizard.Prompt{
						Text: fmt.Sprintf("How much is the %s? Send an amount like 120 or 49.99.", entryType(fields)),
					}
				},
				Apply: func(input string, _ map[string]any) (map[string]any, error) {
					cents, err := parseAmount(input)
					if err != nil {
						return nil, wizard.Invalid("that doesn't look like an amount, send something like 120 or 49.99")
					}
					return map[string]any{"amount": cents}, nil
				},
				Next: func(map[string]any) string { return "enterNote" },
			},
			{
				Name:    "enterNote",
				Accepts: wizard.InputText | wizard.InputChoice,
				Prompt: func(map[string]any) wizard.Prompt {
					return wizard.Prompt{
						Text:    "Add a short note, or skip it.",
						Choices: [][]wizard.Choice{{{Label: "Skip", Value: "-"}}},
					}
				},
				Apply: func(input string, _ map[string]any) (map[string]any, error) {
					note := strings.TrimSpace(input)
					if note == "-" {
						note = ""
					}
					if len(note) > 200 {
						return nil, wizard.Invalid("keep the note under 200 characters")
					}
					return map[string]any{"note": note}, nil
				},
				Next: func(map[string]any) string { return "confirm" },
			},
			{
				Name:    "confirm",
				Accepts: wizard.InputChoice,
				Prompt: func(fields map[string]any) wizard.Prompt {
					return wizard.Prompt{
						Text: fmt.Sprintf("Save this %s of %s%s?",
							entryType(fields), formatAmount(entryAmount(fields)), noteSuffix(fields)),
						Choices: [][]wizard.Choice{{{Label: "💾 Save", Value: wizard.ValueSave}}},
					}
				},
			},
		},
		Commit: func(ctx context.Context, userID int64, fields map[string]any) error {
			commitCtx, cancel := context.WithTimeout(ctx, commitTimeout)
			defer cancel()

			_, err := entries.Append(commitCtx, domain.Entry{
				UserID: userID,
				Type:   entryType(fields),
				Amount: entryAmount(fields),
				Note:   entryNote(fields),
			})
			return err
		},
		DoneText: func(fields map[string]any) string {
			return fmt.Sprintf("Recorded %s of %s. Use /balance to see where you stand.",
				entryType(fields), formatAmount(entryAmount(fields)))
		},
		CancelledText: "Entry discarded.",
	}

	runner, err := wizard.NewRunner(def, store, messenger, logger)
	if err != nil {
		return nil, fmt.Errorf("build add wizard: %w", err)
	}

	return &AddCommand{runner: runner}, nil
}

func (c *AddCommand) Name() string      { return "add" }
func (c *AddCommand) Aliases() []string { return []string{"record"} }

// Execute starts a fresh add conversation.
func (c *AddCommand) Execute(ctx context.Context, req dispatch.Request) error {
	return c.runner.Begin(ctx, req)
}

// HandleText feeds free text into an active add conversation.
func (c *AddCommand) HandleText(ctx context.Context, req dispatch.Request) (bool, error) {
	return c.runner.HandleText(ctx, req)
}

// HandleCallback feeds a button press into an active add conversation.
func (c *AddCommand) HandleCallback(ctx context.Context, req dispatch.Request) error {
	return c.runner.HandleCallback(ctx, req)
}

// CancelConversation abandons the caller's add conversation.
func (c *AddCommand) CancelConversation(ctx context.Context, req dispatch.Request) error {
	return c.runner.Cancel(ctx, req)
}

func entryType(fields map[string]any) string {
	t, _ := fields["type"].(string)
	return t
}

func entryAmount(fields map[string]any) int64 {
	amount, _ := fields["amount"].(int64)
	return amount
}

func entryNote(fields map[string]any) string {
	note, _ := fields["note"].(string)
	return note
}

func noteSuffix(fields map[string]any) string {
	if note := entryNote(fields); note != "" {
		return fmt.Sprintf(" (%s)", note)
	}
	return ""
}

// parseAmount converts user input like "120" or "49.99" into cents.
func parseAmount(input string) (int64, error) {
	input = strings.TrimSpace(strings.ReplaceAll(input, ",", "."))
	if input == "" {
		return 0, errors.New("empty amount")
	}

	whole := input
	frac := ""
	if dot := strings.Index(input, "."); dot >= 0 {
		whole = input[:dot]
		frac = input[dot+1:]
	}

	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, errors.New("invalid amount")
	}

	var cents int64
	switch len(frac) {
	case 0:
	case 1, 2:
		parsed, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || parsed < 0 {
			return 0, errors.New("invalid amount")
		}
		if len(frac) == 1 {
			parsed *= 10
		}
		cents = parsed
	default:
		return 0, errors.New("too many decimal places")
	}

	total := units*100 + cents
	if total <= 0 {
		return 0, errors.New("amount must be positive")
	}
	return total, nil
}

// formatAmount renders cents as a decimal string.
func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
