package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a wallet balance held by the ledger. Balance is never negative.
type Account struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Balance   decimal.Decimal `json:"balance"    db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// DepositRequest is the payload for funding a wallet.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
