package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/db"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/stretchr/testify/suite"
)

// RepositoryTestSuite runs the same ledger contract against every implementation
type RepositoryTestSuite struct {
	suite.Suite
	newRepo  func(t *testing.T) Repository
	setClock func(repo Repository, now func() time.Time)
	repo     Repository
	ctx      context.Context
}

func TestSQLiteRepository(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{
		newRepo: func(t *testing.T) Repository {
			database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.sqlite"), logging.NewDiscard())
			if err != nil {
				t.Fatalf("open database: %v", err)
			}
			return NewSQLiteRepository(database)
		},
		setClock: func(repo Repository, now func() time.Time) {
			repo.(*SQLiteRepository).now = now
		},
	})
}

func TestMemoryRepository(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{
		newRepo: func(t *testing.T) Repository {
			return NewMemoryRepository()
		},
		setClock: func(repo Repository, now func() time.Time) {
			repo.(*MemoryRepository).now = now
		},
	})
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo(s.T())
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.NoError(s.repo.Close())
}

func (s *RepositoryTestSuite) credit(userID string, amount int64, reason, key string) bool {
	_, granted, err := s.repo.Credit(s.ctx, entities.Credit{
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		DedupeKey: key,
	})
	s.Require().NoError(err)
	return granted
}

func (s *RepositoryTestSuite) balance(userID string) int64 {
	wallet, err := s.repo.GetWallet(s.ctx, userID)
	s.Require().NoError(err)
	return wallet.Balance
}

func (s *RepositoryTestSuite) TestGetWalletMissing() {
	_, err := s.repo.GetWallet(s.ctx, "nobody")
	s.ErrorIs(err, ErrWalletNotFound)
}

func (s *RepositoryTestSuite) TestEnsureWalletIdempotent() {
	s.Require().NoError(s.repo.EnsureWallet(s.ctx, "u1"))
	s.True(s.credit("u1", 5, "seed", ""))
	s.Require().NoError(s.repo.EnsureWallet(s.ctx, "u1"))

	s.Equal(int64(5), s.balance("u1"), "EnsureWallet must not reset an existing balance")
}

func (s *RepositoryTestSuite) TestCreditCreatesMissingWallet() {
	tx, granted, err := s.repo.Credit(s.ctx, entities.Credit{UserID: "fresh", Amount: 7, Reason: "first"})
	s.Require().NoError(err)
	s.True(granted)
	s.Require().NotNil(tx)
	s.NotEmpty(tx.ID)
	s.Equal(int64(7), tx.BalanceAfter)
	s.Equal(int64(7), s.balance("fresh"))
}

func (s *RepositoryTestSuite) TestDedupeKeyGrantsOnce() {
	s.True(s.credit("u1", 10, "Heads Up correct", "HU_u1_torque"))
	s.False(s.credit("u1", 10, "Heads Up correct", "HU_u1_torque"))

	s.Equal(int64(10), s.balance("u1"))

	txs, err := s.repo.GetTransactions(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Len(txs, 1)
}

func (s *RepositoryTestSuite) TestDedupeKeyIsPerUser() {
	s.True(s.credit("u1", 10, "reward", "shared-key"))
	s.True(s.credit("u2", 10, "reward", "shared-key"))

	s.Equal(int64(10), s.balance("u1"))
	s.Equal(int64(10), s.balance("u2"))
}

func (s *RepositoryTestSuite) TestCreditsWithoutKeyAlwaysApply() {
	s.True(s.credit("u1", 3, "bonus", ""))
	s.True(s.credit("u1", 3, "bonus", ""))

	s.Equal(int64(6), s.balance("u1"))
}

func (s *RepositoryTestSuite) TestBalanceMatchesTransactionSum() {
	amounts := []int64{10, 100, -5, 25, 0, 1}
	for i, amount := range amounts {
		s.credit("u1", amount, "step", fmt.Sprintf("k%d", i))
	}
	// Duplicates must not affect either side
	s.credit("u1", 999, "dup", "k0")

	txs, err := s.repo.GetTransactions(s.ctx, "u1", 100)
	s.Require().NoError(err)

	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	s.Equal(sum, s.balance("u1"))
	s.Equal(int64(131), sum)
}

func (s *RepositoryTestSuite) TestRecentTransactionsOrderAndLimit() {
	s.True(s.credit("u1", 10, "Heads Up correct", "HU_u1_torque"))
	s.True(s.credit("u1", 100, "Treasure Hunt complete", "TH_case_lab_u1"))
	s.True(s.credit("u1", 1, "third", ""))

	latest, err := s.repo.GetTransactions(s.ctx, "u1", 1)
	s.Require().NoError(err)
	s.Require().Len(latest, 1)
	s.Equal("third", latest[0].Reason)

	all, err := s.repo.GetTransactions(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"third", "Treasure Hunt complete", "Heads Up correct"},
		[]string{all[0].Reason, all[1].Reason, all[2].Reason})
	s.Equal("TH_case_lab_u1", all[1].DedupeKey)
	s.Equal(int64(111), all[0].BalanceAfter)
	s.Greater(all[0].Seq, all[1].Seq)
}

func (s *RepositoryTestSuite) TestRecentTransactionsEmpty() {
	txs, err := s.repo.GetTransactions(s.ctx, "nobody", 5)
	s.Require().NoError(err)
	s.Empty(txs)

	txs, err = s.repo.GetTransactions(s.ctx, "nobody", 0)
	s.Require().NoError(err)
	s.Empty(txs)
}

func (s *RepositoryTestSuite) TestTimestampsNeverGoBackwards() {
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.setClock(s.repo, func() time.Time { return base })
	s.True(s.credit("u1", 1, "first", ""))

	// Clock steps back an hour
	s.setClock(s.repo, func() time.Time { return base.Add(-time.Hour) })
	s.True(s.credit("u1", 1, "second", ""))

	txs, err := s.repo.GetTransactions(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Require().Len(txs, 2)
	s.Equal("second", txs[0].Reason, "insertion order must win for equal timestamps")
	s.False(txs[0].Timestamp.Before(txs[1].Timestamp))
	s.True(txs[0].Timestamp.Equal(base))
}

func (s *RepositoryTestSuite) TestConcurrentSameKeyGrantsExactlyOnce() {
	const workers = 16

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, granted, err := s.repo.Credit(s.ctx, entities.Credit{
				UserID:    "racer",
				Amount:    100,
				Reason:    "Treasure Hunt complete",
				DedupeKey: "TH_SEQ_lab_racer",
			})
			if err != nil {
				errs <- err
				return
			}
			results <- granted
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	grants := 0
	for granted := range results {
		if granted {
			grants++
		}
	}
	s.Equal(1, grants)
	s.Equal(int64(100), s.balance("racer"))
}

func (s *RepositoryTestSuite) TestConcurrentDistinctKeysAllApply() {
	const workers = 12

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, granted, err := s.repo.Credit(s.ctx, entities.Credit{
				UserID:    "busy",
				Amount:    10,
				Reason:    "Heads Up correct",
				DedupeKey: fmt.Sprintf("HU_busy_%d", i),
			})
			if err == nil && !granted {
				err = fmt.Errorf("credit %d was not granted", i)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	s.Equal(int64(workers*10), s.balance("busy"))

	txs, err := s.repo.GetTransactions(s.ctx, "busy", 100)
	s.Require().NoError(err)
	s.Len(txs, workers)
	for i := 1; i < len(txs); i++ {
		s.False(txs[i-1].Timestamp.Before(txs[i].Timestamp), "history must be newest first")
	}
}

func (s *RepositoryTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, granted, err := s.repo.Credit(ctx, entities.Credit{UserID: "u1", Amount: 1})
	s.Error(err)
	s.False(granted)

	_, err = s.repo.GetWallet(s.ctx, "u1")
	s.ErrorIs(err, ErrWalletNotFound, "a failed credit must leave no trace")
}
