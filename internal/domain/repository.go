package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type insertFindCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// EntryRepository persists and retrieves ledger entries in MongoDB. The store
// behaves as an append-only ledger: entries are inserted, never updated.
type EntryRepository struct {
	collection insertFindCollection
}

// NewEntryRepository constructs an EntryRepository.
func NewEntryRepository(collection insertFindCollection) *EntryRepository {
	return &EntryRepository{collection: collection}
}

// Append inserts an entry, assigning an id and timestamp when missing.
func (r *EntryRepository) Append(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.collection == nil {
		return Entry{}, errors.New("entry repository is not initialized")
	}
	if ctx == nil {
		return Entry{}, errors.New("context is required")
	}
	if entry.UserID == 0 {
		return Entry{}, errors.New("user_id is required")
	}
	if !ValidEntryType(entry.Type) {
		return Entry{}, fmt.Errorf("invalid entry type %q", entry.Type)
	}
	if entry.Amount <= 0 {
		return Entry{}, errors.New("amount must be positive")
	}

	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	return entry, nil
}

// ListByUser fetches a user's entries, newest first.
func (r *EntryRepository) ListByUser(ctx context.Context, userID int64) ([]Entry, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("entry repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}

	cursor, err := r.collection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	return entries, nil
}
