// Package store defines storage interfaces for persisting and retrieving
// users, alpha factors, and backtest results, plus an on-disk price cache.
package store

import (
	"context"

	"factorlab/internal/domain"
)

// UserStore persists verified identities.
type UserStore interface {
	// SaveUser inserts or updates a user record.
	SaveUser(ctx context.Context, user *domain.User) error
}

// FactorStore persists alpha factors keyed by owner id.
type FactorStore interface {
	// SaveFactor inserts or updates a single factor for the owner.
	SaveFactor(ctx context.Context, userID string, f *domain.AlphaFactor) error

	// SyncFactors upserts the owner's full factor list in one call.
	SyncFactors(ctx context.Context, userID string, factors []domain.AlphaFactor) error

	// DeleteFactor removes one factor; the owner id must match.
	DeleteFactor(ctx context.Context, userID, factorID string) error

	// ListFactors returns the owner's factors, newest first.
	ListFactors(ctx context.Context, userID string) ([]domain.AlphaFactor, error)
}

// ResultStore persists completed backtest results.
type ResultStore interface {
	// SaveResult appends a result for the given owner and factor.
	SaveResult(ctx context.Context, userID, factorID string, result *domain.BacktestResult) error

	// ListResults returns results for a factor, newest first.
	ListResults(ctx context.Context, factorID string) ([]domain.BacktestResult, error)
}
