package entities

import (
	"time"
)

// Wallet holds a user's reward coin balance
type Wallet struct {
	UserID      string    // Stable user identifier
	Balance     int64     // Current coin balance
	LastUpdated time.Time // When the wallet was last mutated
}

// Transaction is one append-only balance change
type Transaction struct {
	ID           string    // Unique identifier
	UserID       string    // Owning wallet
	Amount       int64     // Signed delta; grants are positive
	Reason       string    // Human-readable description
	DedupeKey    string    // Optional; empty means no deduplication
	Timestamp    time.Time // Non-decreasing within a user's history
	BalanceAfter int64     // Balance after this transaction
	Seq          int64     // Store-assigned insertion order
}

// Credit is a request to change a wallet's balance
type Credit struct {
	UserID    string
	Amount    int64
	Reason    string
	DedupeKey string
}

// HasDedupeKey reports whether the credit must be granted at most once
func (c Credit) HasDedupeKey() bool {
	return c.DedupeKey != ""
}

// WalletSummary is the read model shown next to every game page
type WalletSummary struct {
	UserID       string
	Balance      int64
	Transactions []*Transaction
}
