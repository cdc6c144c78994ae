package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_assistant_bot/internal/conversation"
	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/domain"
	"tg_assistant_bot/internal/wizard"
)

type fakeAppender struct {
	entries []domain.Entry
	err     error
}

func (f *fakeAppender) Append(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	if f.err != nil {
		return domain.Entry{}, f.err
	}
	f.entries = append(f.entries, entry)
	return entry, nil
}

type promptRecord struct {
	text     string
	keyboard [][]wizard.Button
}

type fakeWizardMessenger struct {
	sends  []promptRecord
	edits  []promptRecord
	acks   []string
	nextID int
}

func (m *fakeWizardMessenger) SendPrompt(ctx context.Context, chatID int64, text string, keyboard [][]wizard.Button) (int, error) {
	m.nextID++
	m.sends = append(m.sends, promptRecord{text: text, keyboard: keyboard})
	return m.nextID, nil
}

func (m *fakeWizardMessenger) EditPrompt(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]wizard.Button) error {
	m.edits = append(m.edits, promptRecord{text: text, keyboard: keyboard})
	return nil
}

func (m *fakeWizardMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.acks = append(m.acks, text)
	return nil
}

func newAddCommand(t *testing.T, appender *fakeAppender) (*AddCommand, *conversation.Store, *fakeWizardMessenger) {
	t.Helper()

	store := conversation.NewStore()
	messenger := &fakeWizardMessenger{}
	logger, _ := logtest.NewNullLogger()

	cmd, err := NewAddCommand(appender, store, messenger, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewAddCommand returned error: %v", err)
	}
	return cmd, store, messenger
}

func addCallback(userID int64, data string) dispatch.Request {
	return dispatch.Request{UserID: userID, ChatID: 900, MessageID: 1, CallbackID: "cb", Data: data}
}

func TestAddCommandRecordsExpense(t *testing.T) {
	appender := &fakeAppender{}
	cmd, store, messenger := newAddCommand(t, appender)
	ctx := context.Background()

	if err := cmd.Execute(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "selectType:expense")); err != nil {
		t.Fatalf("select type: %v", err)
	}
	if _, err := cmd.HandleText(ctx, dispatch.Request{UserID: 42, ChatID: 900, Text: "49.99"}); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if _, err := cmd.HandleText(ctx, dispatch.Request{UserID: 42, ChatID: 900, Text: "groceries"}); err != nil {
		t.Fatalf("enter note: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "confirm:save")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(appender.entries) != 1 {
		t.Fatalf("expected 1 appended entry, got %d", len(appender.entries))
	}
	entry := appender.entries[0]
	if entry.UserID != 42 || entry.Type != domain.EntryExpense || entry.Amount != 4999 || entry.Note != "groceries" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if _, ok := store.Get(42, "add"); ok {
		t.Fatalf("expected conversation cleared after save")
	}

	done := messenger.edits[len(messenger.edits)-1].text
	if !strings.Contains(done, "Recorded expense of 49.99") {
		t.Fatalf("unexpected done text: %q", done)
	}
}

func TestAddCommandSkipNote(t *testing.T) {
	appender := &fakeAppender{}
	cmd, _, _ := newAddCommand(t, appender)
	ctx := context.Background()

	if err := cmd.Execute(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "selectType:income")); err != nil {
		t.Fatalf("select type: %v", err)
	}
	if _, err := cmd.HandleText(ctx, dispatch.Request{UserID: 42, ChatID: 900, Text: "700"}); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "enterNote:-")); err != nil {
		t.Fatalf("skip note: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "confirm:save")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(appender.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(appender.entries))
	}
	if appender.entries[0].Note != "" || appender.entries[0].Amount != 70000 {
		t.Fatalf("unexpected entry: %+v", appender.entries[0])
	}
}

func TestAddCommandInvalidAmountStaysPut(t *testing.T) {
	cmd, store, messenger := newAddCommand(t, &fakeAppender{})
	ctx := context.Background()

	if err := cmd.Execute(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "selectType:expense")); err != nil {
		t.Fatalf("select type: %v", err)
	}
	if _, err := cmd.HandleText(ctx, dispatch.Request{UserID: 42, ChatID: 900, Text: "lots"}); err != nil {
		t.Fatalf("invalid amount: %v", err)
	}

	entry, ok := store.Get(42, "add")
	if !ok || entry.Step != "enterAmount" {
		t.Fatalf("expected conversation at enterAmount, got %+v", entry)
	}

	last := messenger.edits[len(messenger.edits)-1].text
	if !strings.Contains(last, "doesn't look like an amount") {
		t.Fatalf("expected validation annotation, got %q", last)
	}
}

func TestAddCommandFailedSaveKeepsAnswers(t *testing.T) {
	appender := &fakeAppender{err: errors.New("mongo down")}
	cmd, store, _ := newAddCommand(t, appender)
	ctx := context.Background()

	if err := cmd.Execute(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "selectType:expense")); err != nil {
		t.Fatalf("select type: %v", err)
	}
	if _, err := cmd.HandleText(ctx, dispatch.Request{UserID: 42, ChatID: 900, Text: "12"}); err != nil {
		t.Fatalf("enter amount: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "enterNote:-")); err != nil {
		t.Fatalf("skip note: %v", err)
	}
	if err := cmd.HandleCallback(ctx, addCallback(42, "confirm:save")); err != nil {
		t.Fatalf("failed save should not bubble: %v", err)
	}

	entry, ok := store.Get(42, "add")
	if !ok || entry.Step != "confirm" {
		t.Fatalf("expected conversation kept at confirm, got %+v ok=%v", entry, ok)
	}

	appender.err = nil
	if err := cmd.HandleCallback(ctx, addCallback(42, "confirm:save")); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if len(appender.entries) != 1 {
		t.Fatalf("expected retry to append, got %d entries", len(appender.entries))
	}
}

func TestAddCommandCancelConversation(t *testing.T) {
	cmd, store, _ := newAddCommand(t, &fakeAppender{})
	ctx := context.Background()

	if err := cmd.Execute(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cmd.CancelConversation(ctx, dispatch.Request{UserID: 42, ChatID: 900}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := store.Get(42, "add"); ok {
		t.Fatalf("expected conversation cancelled")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "120", want: 12000},
		{input: "49.99", want: 4999},
		{input: "49,99", want: 4999},
		{input: "0.5", want: 50},
		{input: ".75", want: 75},
		{input: " 7 ", want: 700},
		{input: "0", wantErr: true},
		{input: "0.00", wantErr: true},
		{input: "-5", wantErr: true},
		{input: "1.234", wantErr: true},
		{input: "lots", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseAmount(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %d", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAmount(%q) returned error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("parseAmount(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := formatAmount(4999); got != "49.99" {
		t.Fatalf("expected 49.99, got %q", got)
	}
	if got := formatAmount(70000); got != "700.00" {
		t.Fatalf("expected 700.00, got %q", got)
	}
	if got := formatSigned(-150); got != "-1.50" {
		t.Fatalf("expected -1.50, got %q", got)
	}
}
