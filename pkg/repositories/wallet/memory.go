package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/google/uuid"
)

// MemoryRepository implements Repository using in-memory storage. State lives
// only as long as the process, so it backs tests and throwaway demos.
type MemoryRepository struct {
	wallets      map[string]*entities.Wallet
	transactions map[string][]*entities.Transaction
	dedupeKeys   map[string]map[string]struct{}
	seq          int64
	mu           sync.RWMutex
	now          func() time.Time
}

// NewMemoryRepository creates a new in-memory wallet repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets:      make(map[string]*entities.Wallet),
		transactions: make(map[string][]*entities.Transaction),
		dedupeKeys:   make(map[string]map[string]struct{}),
		now:          time.Now,
	}
}

// EnsureWallet creates an empty wallet for the user if none exists
func (r *MemoryRepository) EnsureWallet(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureWalletLocked(userID)
	return nil
}

func (r *MemoryRepository) ensureWalletLocked(userID string) *entities.Wallet {
	wallet, exists := r.wallets[userID]
	if !exists {
		wallet = &entities.Wallet{
			UserID:      userID,
			LastUpdated: r.now().UTC(),
		}
		r.wallets[userID] = wallet
	}
	return wallet
}

// GetWallet retrieves a wallet by user ID
func (r *MemoryRepository) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallet, exists := r.wallets[userID]
	if !exists {
		return nil, ErrWalletNotFound
	}

	// Return a copy to prevent concurrent modification
	walletCopy := *wallet
	return &walletCopy, nil
}

// Credit applies a credit while holding the write lock for the whole check-and-apply
func (r *MemoryRepository) Credit(ctx context.Context, credit entities.Credit) (*entities.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if credit.HasDedupeKey() {
		if _, seen := r.dedupeKeys[credit.UserID][credit.DedupeKey]; seen {
			return nil, false, nil
		}
	}

	wallet := r.ensureWalletLocked(credit.UserID)

	now := r.now().UTC()
	history := r.transactions[credit.UserID]
	if n := len(history); n > 0 && now.Before(history[n-1].Timestamp) {
		now = history[n-1].Timestamp
	}

	wallet.Balance += credit.Amount
	wallet.LastUpdated = now

	r.seq++
	transaction := &entities.Transaction{
		ID:           uuid.New().String(),
		UserID:       credit.UserID,
		Amount:       credit.Amount,
		Reason:       credit.Reason,
		DedupeKey:    credit.DedupeKey,
		Timestamp:    now,
		BalanceAfter: wallet.Balance,
		Seq:          r.seq,
	}
	r.transactions[credit.UserID] = append(history, transaction)

	if credit.HasDedupeKey() {
		if r.dedupeKeys[credit.UserID] == nil {
			r.dedupeKeys[credit.UserID] = make(map[string]struct{})
		}
		r.dedupeKeys[credit.UserID][credit.DedupeKey] = struct{}{}
	}

	txCopy := *transaction
	return &txCopy, true, nil
}

// GetTransactions retrieves recent transactions for a user, newest first
func (r *MemoryRepository) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	if limit <= 0 {
		return []*entities.Transaction{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	transactions := r.transactions[userID]
	result := make([]*entities.Transaction, 0, min(limit, len(transactions)))

	for i := len(transactions) - 1; i >= 0 && len(result) < limit; i-- {
		txCopy := *transactions[i]
		result = append(result, &txCopy)
	}

	return result, nil
}

// Close is a no-op for the memory repository
func (r *MemoryRepository) Close() error {
	return nil
}
