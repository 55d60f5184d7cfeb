package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	walletRepo "github.com/fadedpez/stemverse/pkg/repositories/wallet"
)

const (
	// DefaultRecentTransactions is how many entries the sidebar shows
	DefaultRecentTransactions = 10

	// MaxRecentTransactions caps any single history read
	MaxRecentTransactions = 100

	// DefaultObserverTimeout bounds how long one observer may take per grant
	DefaultObserverTimeout = 10 * time.Second
)

var (
	ErrMissingUserID = types.NewAppError(types.ErrInvalidArgument, "user id is required")
	ErrInvalidLimit  = types.NewAppError(types.ErrInvalidArgument, "limit must be positive")
)

// Service handles wallet business logic
type Service struct {
	repo            walletRepo.Repository
	observers       []GrantObserver
	observerTimeout time.Duration
	logger          *logging.Logger
	pending         sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithObserver registers an observer notified of every grant
func WithObserver(observer GrantObserver) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observer)
	}
}

// WithObserverTimeout overrides DefaultObserverTimeout
func WithObserverTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.observerTimeout = timeout
	}
}

// WithLogger sets the service logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new wallet service
func NewService(repo walletRepo.Repository, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		observerTimeout: DefaultObserverTimeout,
		logger:          logging.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ WalletService = (*Service)(nil)

// EnsureWallet creates an empty wallet for the user if none exists
func (s *Service) EnsureWallet(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	if err := s.repo.EnsureWallet(ctx, userID); err != nil {
		return unavailable("could not create wallet", err)
	}
	return nil
}

// GetBalance returns the current balance, or 0 for a user with no wallet
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}

	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, walletRepo.ErrWalletNotFound) {
			return 0, nil
		}
		return 0, unavailable("could not read balance", err)
	}
	return wallet.Balance, nil
}

// AddCoins credits amount to the user's wallet. With a non-empty dedupeKey the
// credit is granted at most once per user; a repeat returns false, nil.
func (s *Service) AddCoins(ctx context.Context, userID string, amount int64, reason, dedupeKey string) (bool, error) {
	if err := validateUserID(userID); err != nil {
		return false, err
	}

	fields := logging.Fields{
		"user_id":    userID,
		"amount":     amount,
		"dedupe_key": dedupeKey,
	}

	tx, granted, err := s.repo.Credit(ctx, entities.Credit{
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		DedupeKey: dedupeKey,
	})
	if err != nil {
		appErr := unavailable("could not grant coins", err)
		s.logger.LogError(appErr, fields)
		return false, appErr
	}

	if !granted {
		s.logger.WithFields(fields).Debug("Duplicate grant ignored")
		return false, nil
	}

	s.logger.WithFields(fields).WithField("balance", tx.BalanceAfter).Info("Coins granted")
	s.notify(ctx, tx)

	return true, nil
}

// notify hands the grant to every observer in the background. Observers get
// a context detached from the request, so a client hanging up does not cancel
// them, and their failures never undo a committed grant.
func (s *Service) notify(ctx context.Context, tx *entities.Transaction) {
	if len(s.observers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, observer := range s.observers {
		s.pending.Add(1)
		go func(observer GrantObserver) {
			defer s.pending.Done()

			ctx, cancel := context.WithTimeout(detached, s.observerTimeout)
			defer cancel()

			if err := observer.OnGrant(ctx, tx); err != nil {
				s.logger.WithFields(logging.Fields{
					"user_id":        tx.UserID,
					"transaction_id": tx.ID,
				}).WithError(err).Warn("Grant observer failed")
			}
		}(observer)
	}
}

// Wait blocks until every in-flight observer notification has finished
func (s *Service) Wait() {
	s.pending.Wait()
}

// RecentTransactions returns up to limit transactions, newest first
func (s *Service) RecentTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > MaxRecentTransactions {
		limit = MaxRecentTransactions
	}

	txs, err := s.repo.GetTransactions(ctx, userID, limit)
	if err != nil {
		return nil, unavailable("could not read transactions", err)
	}
	return txs, nil
}

// Summary ensures the wallet exists and returns its balance with recent history
func (s *Service) Summary(ctx context.Context, userID string, limit int) (*entities.WalletSummary, error) {
	if err := s.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}

	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := s.RecentTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	return &entities.WalletSummary{
		UserID:       userID,
		Balance:      balance,
		Transactions: txs,
	}, nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	return nil
}

func unavailable(message string, err error) error {
	return types.WrapError(types.ErrLedgerUnavailable, message, err)
}
