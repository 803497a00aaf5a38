package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

// AccountService manages wallet balances. Balances only matter to
// settlement when the engine runs in WalletEnforce mode.
type AccountService struct {
	*core
}

type walletDeposited struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// Deposit adds amount to an account, creating it on first use.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*model.Account, error) {
	if err := required("account_id", accountID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, &model.ErrValidation{Msg: "amount must be greater than zero"}
	}

	unlock := s.locks.Lock(accountKey(accountID))
	defer unlock()

	var (
		account *model.Account
		entry   *ledger.Entry
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccountForUpdate(ctx, accountID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			a = &model.Account{AccountID: accountID, Balance: decimal.Zero}
		case err != nil:
			return err
		}
		a.Balance = a.Balance.Add(amount)
		a.UpdatedAt = ledger.Timestamp(s.now())
		if err := tx.PutAccount(ctx, a); err != nil {
			return err
		}
		e, err := tx.Append(ctx, ledger.EventWalletDeposited, accountID, walletDeposited{
			AccountID: accountID,
			Amount:    amount,
			Balance:   a.Balance,
		})
		if err != nil {
			return err
		}
		account, entry = a, e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet deposit",
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.String("balance", account.Balance.String()),
	)
	s.publish(ctx, entry)
	return account, nil
}

// Get returns an account. Accounts that have never been written read as a
// zero balance.
func (s *AccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	if err := required("account_id", accountID); err != nil {
		return nil, err
	}
	a, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Account{AccountID: accountID, Balance: decimal.Zero}, nil
	}
	return a, err
}

// Balance returns the balance of accountID.
func (s *AccountService) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	a, err := s.Get(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}
