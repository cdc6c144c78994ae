package domain

import "time"

// Entry types recorded in the ledger.
const (
	EntryIncome  = "income"
	EntryExpense = "expense"
)

// Entry is one ledger record appended when an add-entry conversation reaches
// its terminal save step.
type Entry struct {
	EntryID   string    `bson:"entry_id" json:"entry_id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	Type      string    `bson:"type" json:"type"`
	Amount    int64     `bson:"amount" json:"amount"`
	Note      string    `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ValidEntryType reports whether the given type is a known ledger entry type.
func ValidEntryType(t string) bool {
	return t == EntryIncome || t == EntryExpense
}
