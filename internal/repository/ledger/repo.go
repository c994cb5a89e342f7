// Package ledger tracks per-user credit balances on account hashes.
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/framelens/promptforge/internal/domain"
)

const creditsField = "credits"

// store is the consumer interface for ledger operations (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, val int64) (int64, error)
}

// Repo implements the credit ledger against account:{userID} hashes.
type Repo struct {
	store store
}

// New creates a ledger repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Balance returns the current credit balance. An unknown user has balance 0.
func (r *Repo) Balance(ctx context.Context, userID string) (int64, error) {
	fields, err := r.store.HGetAll(ctx, accountKey(userID))
	if err != nil {
		return 0, fmt.Errorf("hgetall %s: %w", accountKey(userID), err)
	}
	raw, ok := fields[creditsField]
	if !ok || raw == "" {
		return 0, nil
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %s: %w", accountKey(userID), err)
	}
	return balance, nil
}

// Debit atomically subtracts amount from the balance. A debit that would go
// negative is refunded and rejected with InsufficientCreditsError.
func (r *Repo) Debit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	remaining, err := r.store.HIncrBy(ctx, accountKey(userID), creditsField, -amount)
	if err != nil {
		return fmt.Errorf("hincrby %s: %w", accountKey(userID), err)
	}
	if remaining < 0 {
		if _, refundErr := r.store.HIncrBy(ctx, accountKey(userID), creditsField, amount); refundErr != nil {
			return fmt.Errorf("refund after overdraft %s: %w", accountKey(userID), refundErr)
		}
		return domain.NewInsufficientCredits(amount, remaining+amount)
	}
	return nil
}

// Credit adds amount to the balance and returns the new value.
func (r *Repo) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	balance, err := r.store.HIncrBy(ctx, accountKey(userID), creditsField, amount)
	if err != nil {
		return 0, fmt.Errorf("hincrby %s: %w", accountKey(userID), err)
	}
	return balance, nil
}

func accountKey(userID string) string {
	return "account:" + userID
}
