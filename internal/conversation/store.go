// Package conversation tracks in-progress multi-step interactions, keyed by
// user and owning command. State lives in process memory only: losing
// in-flight conversations on restart is an accepted trade-off, and every
// entry point re-checks the store so a vanished conversation degrades to a
// no-op rather than a hang.
package conversation

import (
	"errors"
	"sync"
	"time"
)

// ErrNoConversation is returned when an operation targets a (user, command)
// pair with no active entry.
var ErrNoConversation = errors.New("no active conversation")

// Key identifies one conversation: a user can hold at most one per command.
type Key struct {
	UserID  int64
	Command string
}

// Entry is a snapshot of one conversation. Mutation happens only through the
// store; callers receive copies.
type Entry struct {
	Step      string
	Fields    map[string]any
	History   []string
	ChatID    int64
	MessageID int
	StartedAt time.Time
	UpdatedAt time.Time
}

// Store holds every active conversation. Operations on a single key are
// atomic; callers needing a read-modify-write sequence across calls must
// serialize per user, which the dispatcher does.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewStore constructs an empty conversation store.
func NewStore() *Store {
	return &Store{entries: make(map[Key]*Entry)}
}

// Start creates a fresh conversation at the given step, silently discarding
// any previous entry for the same (user, command) pair.
func (s *Store) Start(userID int64, command, step string, chatID int64) Entry {
	now := time.Now().UTC()
	entry := &Entry{
		Step:      step,
		Fields:    make(map[string]any),
		ChatID:    chatID,
		StartedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[Key{UserID: userID, Command: command}] = entry
	s.mu.Unlock()

	return cloneEntry(entry)
}

// Get returns a snapshot of the active conversation, if any.
func (s *Store) Get(userID int64, command string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[Key{UserID: userID, Command: command}]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

// SetMessage records the chat message the conversation edits in place to
// render its prompts.
func (s *Store) SetMessage(userID int64, command string, chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[Key{UserID: userID, Command: command}]
	if !ok {
		return ErrNoConversation
	}

	entry.ChatID = chatID
	entry.MessageID = messageID
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

// Advance moves the conversation to nextStep, merging updates into the
// accumulated fields and pushing the prior step onto the history.
func (s *Store) Advance(userID int64, command, nextStep string, updates map[string]any) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[Key{UserID: userID, Command: command}]
	if !ok {
		return Entry{}, ErrNoConversation
	}

	for k, v := range updates {
		entry.Fields[k] = v
	}
	entry.History = append(entry.History, entry.Step)
	entry.Step = nextStep
	entry.UpdatedAt = time.Now().UTC()

	return cloneEntry(entry), nil
}

// Back pops the most recent step from history and makes it current again.
// From the initial step (empty history) it behaves as Cancel and reports
// cancelled=true.
func (s *Store) Back(userID int64, command string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{UserID: userID, Command: command}
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, ErrNoConversation
	}

	if len(entry.History) == 0 {
		delete(s.entries, key)
		return Entry{}, true, nil
	}

	last := len(entry.History) - 1
	entry.Step = entry.History[last]
	entry.History = entry.History[:last]
	entry.UpdatedAt = time.Now().UTC()

	return cloneEntry(entry), false, nil
}

// Cancel deletes the conversation and reports whether one existed.
func (s *Store) Cancel(userID int64, command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{UserID: userID, Command: command}
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Active returns the command owning the user's current conversation. When the
// user somehow holds several, the most recently touched one wins.
func (s *Store) Active(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		owner  string
		latest time.Time
		found  bool
	)

	for key, entry := range s.entries {
		if key.UserID != userID {
			continue
		}
		if !found || entry.UpdatedAt.After(latest) {
			owner = key.Command
			latest = entry.UpdatedAt
			found = true
		}
	}

	return owner, found
}

// Len reports the number of active conversations, for diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneEntry(entry *Entry) Entry {
	out := Entry{
		Step:      entry.Step,
		Fields:    make(map[string]any, len(entry.Fields)),
		ChatID:    entry.ChatID,
		MessageID: entry.MessageID,
		StartedAt: entry.StartedAt,
		UpdatedAt: entry.UpdatedAt,
	}
	for k, v := range entry.Fields {
		out.Fields[k] = v
	}
	if len(entry.History) > 0 {
		out.History = append([]string(nil), entry.History...)
	}
	return out
}
