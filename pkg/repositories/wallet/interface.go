package wallet

import (
	"context"
	"errors"

	"github.com/fadedpez/stemverse/pkg/entities"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
)

// Repository defines the interface for wallet ledger storage
type Repository interface {
	// EnsureWallet creates an empty wallet for the user if none exists
	EnsureWallet(ctx context.Context, userID string) error

	// GetWallet retrieves a wallet by user ID, or ErrWalletNotFound
	GetWallet(ctx context.Context, userID string) (*entities.Wallet, error)

	// Credit atomically creates the wallet if missing, applies the amount and
	// appends a transaction. When the credit's dedupe key was already used for
	// the user nothing changes and granted is false.
	Credit(ctx context.Context, credit entities.Credit) (tx *entities.Transaction, granted bool, err error)

	// GetTransactions retrieves up to limit transactions, newest first
	GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error)

	// Close releases the underlying storage
	Close() error
}
