package rewards

import (
	"context"
	"fmt"
	"strings"

	"github.com/fadedpez/stemverse/internal/types"
	walletService "github.com/fadedpez/stemverse/pkg/services/wallet"
)

const (
	// HeadsUpReward is paid once per correctly guessed term
	HeadsUpReward int64 = 10

	// TreasureHuntReward is paid once per solved case
	TreasureHuntReward int64 = 100

	HeadsUpReason = "Heads Up correct"
)

// Grant is the outcome of a reward attempt
type Grant struct {
	Granted bool  `json:"granted"`
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

// Service turns game events into deduplicated ledger credits
type Service struct {
	wallet walletService.WalletService
}

// NewService creates a rewards service on top of the ledger
func NewService(wallet walletService.WalletService) *Service {
	return &Service{wallet: wallet}
}

// HeadsUpKey is the dedupe key for a Heads Up term
func HeadsUpKey(userID, term string) string {
	return fmt.Sprintf("HU_%s_%s", userID, term)
}

// TreasureHuntKey is the dedupe key for a Treasure Hunt case
func TreasureHuntKey(caseID, userID string) string {
	return fmt.Sprintf("TH_SEQ_%s_%s", caseID, userID)
}

// TreasureHuntReason describes a completed case in the history
func TreasureHuntReason(caseTitle string) string {
	return fmt.Sprintf("Treasure Hunt — %s complete", caseTitle)
}

// HeadsUpCorrect awards a correct Heads Up guess
func (s *Service) HeadsUpCorrect(ctx context.Context, userID, term string) (*Grant, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, types.NewAppError(types.ErrInvalidArgument, "term is required")
	}

	return s.grant(ctx, userID, HeadsUpReward, HeadsUpReason, HeadsUpKey(userID, term))
}

// TreasureHuntComplete awards finishing a Treasure Hunt case
func (s *Service) TreasureHuntComplete(ctx context.Context, userID, caseID, caseTitle string) (*Grant, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, types.NewAppError(types.ErrInvalidArgument, "case id is required")
	}

	title := strings.TrimSpace(caseTitle)
	if title == "" {
		title = caseID
	}

	return s.grant(ctx, userID, TreasureHuntReward, TreasureHuntReason(title), TreasureHuntKey(caseID, userID))
}

func (s *Service) grant(ctx context.Context, userID string, amount int64, reason, key string) (*Grant, error) {
	if err := s.wallet.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}

	granted, err := s.wallet.AddCoins(ctx, userID, amount, reason, key)
	if err != nil {
		return nil, err
	}

	balance, err := s.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &Grant{
		Granted: granted,
		Balance: balance,
	}
	if granted {
		result.Amount = amount
	}
	return result, nil
}
