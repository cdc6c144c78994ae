package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/logging"
	"tg_assistant_bot/internal/store"
)

type totalsProvider interface {
	UserTotals(ctx context.Context, userID int64) (store.Totals, error)
}

type textSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// BalanceCommand renders the caller's ledger totals.
type BalanceCommand struct {
	totals    totalsProvider
	messenger textSender
	logger    *logrus.Entry
}

// NewBalanceCommand constructs the /balance handler.
func NewBalanceCommand(totals totalsProvider, messenger textSender, logger *logrus.Entry) (*BalanceCommand, error) {
	if totals == nil {
		return nil, errors.New("totals provider is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &BalanceCommand{totals: totals, messenger: messenger, logger: logger}, nil
}

func (c *BalanceCommand) Name() string      { return "balance" }
func (c *BalanceCommand) Aliases() []string { return []string{"bal"} }

// Execute replies with the user's income, expenses and net position.
func (c *BalanceCommand) Execute(ctx context.Context, req dispatch.Request) error {
	totals, err := c.totals.UserTotals(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("load totals: %w", err)
	}

	if totals.Entries == 0 {
		return c.messenger.SendText(ctx, req.ChatID, "No entries yet. Use /add to record your first one.")
	}

	text := fmt.Sprintf(
		"Your ledger (%d entries)\n\nIncome: %s\nExpenses: %s\nNet: %s",
		totals.Entries,
		formatAmount(totals.Income),
		formatAmount(totals.Expense),
		formatSigned(totals.Net()),
	)

	c.logger.WithFields(logging.Fields{
		"event":   "balance_rendered",
		"user_id": req.UserID,
		"entries": totals.Entries,
	}).Debug("rendered balance")

	return c.messenger.SendText(ctx, req.ChatID, text)
}

func formatSigned(cents int64) string {
	if cents < 0 {
		return "-" + formatAmount(-cents)
	}
	return formatAmount(cents)
}
