// Package idempotency tracks which webhook deliveries have already been
// reconciled. A key is only committed after reconciliation succeeds, so a
// delivery that failed mid-way stays retryable through provider redelivery.
package idempotency

import "context"

// Store is the delivery dedup ledger. TryBegin atomically claims a key: it
// returns false when the key is already committed or claimed by a concurrent
// delivery. Exactly one of Commit or Release must follow a successful
// TryBegin.
type Store interface {
	TryBegin(ctx context.Context, key string) (bool, error)
	Commit(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Key builds the dedup key for one provider delivery.
func Key(provider, eventID string) string {
	return provider + ":" + eventID
}
