package wallet

import (
	"context"

	"github.com/fadedpez/stemverse/pkg/entities"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_wallet_service
type WalletService interface {
	EnsureWallet(ctx context.Context, userID string) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	AddCoins(ctx context.Context, userID string, amount int64, reason, dedupeKey string) (bool, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error)
	Summary(ctx context.Context, userID string, limit int) (*entities.WalletSummary, error)
}

// GrantObserver is notified after a grant has been committed
type GrantObserver interface {
	OnGrant(ctx context.Context, tx *entities.Transaction) error
}
