package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_assistant_bot/internal/domain"
)

type aggregateCollection interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// Totals summarizes a user's ledger without leaking MongoDB internals to
// callers.
type Totals struct {
	Income  int64
	Expense int64
	Entries int64
}

// Net returns income minus expenses.
func (t Totals) Net() int64 {
	return t.Income - t.Expense
}

// TotalsProvider computes per-type ledger sums server-side.
type TotalsProvider struct {
	entries aggregateCollection
}

// NewTotalsProvider constructs a TotalsProvider backed by the entries
// collection.
func NewTotalsProvider(entries aggregateCollection) *TotalsProvider {
	return &TotalsProvider{entries: entries}
}

// UserTotals aggregates the user's entries into income/expense sums.
func (p *TotalsProvider) UserTotals(ctx context.Context, userID int64) (Totals, error) {
	if ctx == nil {
		return Totals{}, errors.New("context is required")
	}
	if p == nil || p.entries == nil {
		return Totals{}, errors.New("totals provider is not initialized")
	}
	if userID == 0 {
		return Totals{}, errors.New("user id is required")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$type",
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := p.entries.Aggregate(ctx, pipeline)
	if err != nil {
		return Totals{}, fmt.Errorf("aggregate totals: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Type  string `bson:"_id"`
		Total int64  `bson:"total"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return Totals{}, fmt.Errorf("decode totals: %w", err)
	}

	totals := Totals{}
	for _, row := range rows {
		totals.Entries += row.Count
		switch row.Type {
		case domain.EntryIncome:
			totals.Income = row.Total
		case domain.EntryExpense:
			totals.Expense = row.Total
		}
	}

	return totals, nil
}
