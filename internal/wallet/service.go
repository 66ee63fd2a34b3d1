// Package wallet exposes real-money balance operations. Every mutation
// goes through the store's guarded adjustment, which refuses to drive a
// balance negative and records a ledger row in the same transaction.
package wallet

import (
	"context"
	"errors"

	"tradearena/internal/model"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = store.ErrNotFound
	ErrInsufficientBalance = store.ErrInsufficientBalance
	ErrInvalidAmount       = errors.New("wallet: amount must be positive")
)

type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

func (s *Service) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	tx, err := s.store.AdjustWalletBalance(ctx, userID, amount, types.WalletTxDeposit, reference)
	if err != nil {
		return nil, err
	}
	s.log.Info("wallet deposit",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
	)
	return tx, nil
}

func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	tx, err := s.store.AdjustWalletBalance(ctx, userID, amount.Neg(), types.WalletTxWithdraw, reference)
	if err != nil {
		return nil, err
	}
	s.log.Info("wallet withdraw",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
	)
	return tx, nil
}

func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListWalletTransactions(ctx, userID, limit)
}
