package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/types"
	"github.com/fadedpez/stemverse/pkg/entities"
	walletRepo "github.com/fadedpez/stemverse/pkg/repositories/wallet"
	mock_wallet_service "github.com/fadedpez/stemverse/pkg/services/wallet/mock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

// MockRepository is a mock implementation of the wallet Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnsureWallet(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRepository) GetWallet(ctx context.Context, userID string) (*entities.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, credit entities.Credit) (*entities.Transaction, bool, error) {
	args := m.Called(ctx, credit)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entities.Transaction), args.Bool(1), args.Error(2)
}

func (m *MockRepository) GetTransactions(ctx context.Context, userID string, limit int) ([]*entities.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Transaction), args.Error(1)
}

func (m *MockRepository) Close() error {
	return nil
}

type ServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *walletRepo.MemoryRepository
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = walletRepo.NewMemoryRepository()
	s.service = NewService(s.repo, WithLogger(logging.NewDiscard()))
}

func (s *ServiceTestSuite) TestWorkedExample() {
	s.Require().NoError(s.service.EnsureWallet(s.ctx, "u1"))
	balance, err := s.service.GetBalance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(0), balance)

	granted, err := s.service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_torque")
	s.Require().NoError(err)
	s.True(granted)
	balance, _ = s.service.GetBalance(s.ctx, "u1")
	s.Equal(int64(10), balance)

	granted, err = s.service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_torque")
	s.Require().NoError(err)
	s.False(granted)
	balance, _ = s.service.GetBalance(s.ctx, "u1")
	s.Equal(int64(10), balance)

	granted, err = s.service.AddCoins(s.ctx, "u1", 100, "Treasure Hunt complete", "TH_case_lab_u1")
	s.Require().NoError(err)
	s.True(granted)
	balance, _ = s.service.GetBalance(s.ctx, "u1")
	s.Equal(int64(110), balance)

	recent, err := s.service.RecentTransactions(s.ctx, "u1", 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(int64(100), recent[0].Amount)
	s.Equal("Treasure Hunt complete", recent[0].Reason)
}

func (s *ServiceTestSuite) TestGetBalanceNeverSeenUser() {
	balance, err := s.service.GetBalance(s.ctx, "ghost")
	s.NoError(err)
	s.Equal(int64(0), balance)

	_, err = s.repo.GetWallet(s.ctx, "ghost")
	s.ErrorIs(err, walletRepo.ErrWalletNotFound, "GetBalance must be side-effect free")
}

func (s *ServiceTestSuite) TestRejectsEmptyUserID() {
	testCases := []struct {
		name string
		call func() error
	}{
		{name: "EnsureWallet", call: func() error { return s.service.EnsureWallet(s.ctx, "") }},
		{name: "GetBalance", call: func() error { _, err := s.service.GetBalance(s.ctx, " "); return err }},
		{name: "AddCoins", call: func() error { _, err := s.service.AddCoins(s.ctx, "", 1, "r", ""); return err }},
		{name: "RecentTransactions", call: func() error { _, err := s.service.RecentTransactions(s.ctx, "", 5); return err }},
		{name: "Summary", call: func() error { _, err := s.service.Summary(s.ctx, "", 5); return err }},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			err := tc.call()
			s.True(types.IsAppError(err, types.ErrInvalidArgument), "expected INVALID_ARGUMENT, got %v", err)
		})
	}
}

func (s *ServiceTestSuite) TestRecentTransactionsLimits() {
	_, err := s.service.RecentTransactions(s.ctx, "u1", 0)
	s.True(types.IsAppError(err, types.ErrInvalidArgument))

	for i := 0; i < MaxRecentTransactions+5; i++ {
		_, err := s.service.AddCoins(s.ctx, "u1", 1, "tick", fmt.Sprintf("tick-%d", i))
		s.Require().NoError(err)
	}

	txs, err := s.service.RecentTransactions(s.ctx, "u1", 1000)
	s.Require().NoError(err)
	s.Len(txs, MaxRecentTransactions)
}

func (s *ServiceTestSuite) TestSummary() {
	_, err := s.service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_gear")
	s.Require().NoError(err)

	summary, err := s.service.Summary(s.ctx, "u1", DefaultRecentTransactions)
	s.Require().NoError(err)
	s.Equal("u1", summary.UserID)
	s.Equal(int64(10), summary.Balance)
	s.Len(summary.Transactions, 1)

	empty, err := s.service.Summary(s.ctx, "newcomer", DefaultRecentTransactions)
	s.Require().NoError(err)
	s.Equal(int64(0), empty.Balance)
	s.Empty(empty.Transactions)

	_, err = s.repo.GetWallet(s.ctx, "newcomer")
	s.NoError(err, "Summary should create the wallet")
}

func (s *ServiceTestSuite) TestObserversSeeGrantsOnly() {
	ctrl := gomock.NewController(s.T())
	observer := mock_wallet_service.NewMockGrantObserver(ctrl)
	service := NewService(s.repo, WithObserver(observer), WithLogger(logging.NewDiscard()))

	observer.EXPECT().
		OnGrant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *entities.Transaction) error {
			s.Equal("u1", tx.UserID)
			s.Equal(int64(100), tx.Amount)
			s.Equal(int64(100), tx.BalanceAfter)
			return nil
		}).
		Times(1)

	granted, err := service.AddCoins(s.ctx, "u1", 100, "Treasure Hunt complete", "TH_SEQ_lab_u1")
	s.Require().NoError(err)
	s.True(granted)

	// Duplicate must not notify
	granted, err = service.AddCoins(s.ctx, "u1", 100, "Treasure Hunt complete", "TH_SEQ_lab_u1")
	s.Require().NoError(err)
	s.False(granted)

	service.Wait()
}

func (s *ServiceTestSuite) TestObserverFailureKeepsGrant() {
	ctrl := gomock.NewController(s.T())
	observer := mock_wallet_service.NewMockGrantObserver(ctrl)
	service := NewService(s.repo, WithObserver(observer), WithLogger(logging.NewDiscard()))

	observer.EXPECT().OnGrant(gomock.Any(), gomock.Any()).Return(errors.New("search cluster down"))

	granted, err := service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_newton 3")
	s.Require().NoError(err)
	s.True(granted)
	service.Wait()

	balance, err := service.GetBalance(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(10), balance)
}

// blockingObserver holds OnGrant until released and records the context it ran with
type blockingObserver struct {
	started  chan struct{}
	release  chan struct{}
	ctxErr   error
	deadline bool
}

func (o *blockingObserver) OnGrant(ctx context.Context, tx *entities.Transaction) error {
	close(o.started)
	<-o.release
	o.ctxErr = ctx.Err()
	_, o.deadline = ctx.Deadline()
	return nil
}

func (s *ServiceTestSuite) TestSlowObserverDoesNotHoldGrant() {
	observer := &blockingObserver{started: make(chan struct{}), release: make(chan struct{})}
	service := NewService(s.repo, WithObserver(observer), WithLogger(logging.NewDiscard()))

	requestCtx, cancel := context.WithCancel(s.ctx)
	granted, err := service.AddCoins(requestCtx, "u1", 10, "Heads Up correct", "HU_u1_torque")
	s.Require().NoError(err)
	s.True(granted, "AddCoins returns while the observer is still blocked")

	// The client goes away before the observer finishes
	cancel()
	<-observer.started
	close(observer.release)
	service.Wait()

	s.NoError(observer.ctxErr, "observers must not inherit request cancellation")
	s.True(observer.deadline, "observers run under a bounded timeout")
}

func (s *ServiceTestSuite) TestObserverTimeout() {
	ctrl := gomock.NewController(s.T())
	observer := mock_wallet_service.NewMockGrantObserver(ctrl)
	service := NewService(s.repo,
		WithObserver(observer),
		WithObserverTimeout(10*time.Millisecond),
		WithLogger(logging.NewDiscard()))

	observer.EXPECT().
		OnGrant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *entities.Transaction) error {
			<-ctx.Done()
			return ctx.Err()
		})

	granted, err := service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_gear")
	s.Require().NoError(err)
	s.True(granted)
	service.Wait()
}

func (s *ServiceTestSuite) TestStorageFailuresAreLedgerUnavailable() {
	repo := new(MockRepository)
	service := NewService(repo, WithLogger(logging.NewDiscard()))
	storageErr := errors.New("disk I/O error")

	repo.On("EnsureWallet", mock.Anything, "u1").Return(storageErr)
	repo.On("GetWallet", mock.Anything, "u1").Return(nil, storageErr)
	repo.On("Credit", mock.Anything, mock.AnythingOfType("entities.Credit")).Return(nil, false, storageErr)
	repo.On("GetTransactions", mock.Anything, "u1", 5).Return(nil, storageErr)

	err := service.EnsureWallet(s.ctx, "u1")
	s.True(types.IsAppError(err, types.ErrLedgerUnavailable))
	s.ErrorIs(err, storageErr)

	_, err = service.GetBalance(s.ctx, "u1")
	s.True(types.IsAppError(err, types.ErrLedgerUnavailable))

	granted, err := service.AddCoins(s.ctx, "u1", 10, "reason", "key")
	s.False(granted)
	s.True(types.IsAppError(err, types.ErrLedgerUnavailable))

	_, err = service.RecentTransactions(s.ctx, "u1", 5)
	s.True(types.IsAppError(err, types.ErrLedgerUnavailable))

	repo.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestAddCoinsPassesCreditThrough() {
	repo := new(MockRepository)
	service := NewService(repo, WithLogger(logging.NewDiscard()))

	expected := entities.Credit{UserID: "u1", Amount: 10, Reason: "Heads Up correct", DedupeKey: "HU_u1_torque"}
	repo.On("Credit", mock.Anything, expected).
		Return(&entities.Transaction{ID: "tx-1", UserID: "u1", Amount: 10, BalanceAfter: 10}, true, nil).
		Once()

	granted, err := service.AddCoins(s.ctx, "u1", 10, "Heads Up correct", "HU_u1_torque")
	s.NoError(err)
	s.True(granted)
	repo.AssertExpectations(s.T())
}
