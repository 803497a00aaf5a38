package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementCompleted is the only status a stored settlement can have;
// settlements are never persisted partially.
const SettlementCompleted = "COMPLETED"

// Settlement records a completed purchase of a listed token.
type Settlement struct {
	SettlementID     string          `json:"settlement_id"     db:"settlement_id"`
	TokenID          string          `json:"token_id"          db:"token_id"`
	SellerID         string          `json:"seller_id"         db:"seller_id"`
	BuyerID          string          `json:"buyer_id"          db:"buyer_id"`
	Quantity         decimal.Decimal `json:"quantity"          db:"quantity"`
	PricePerKg       decimal.Decimal `json:"price_per_kg"      db:"price_per_kg"`
	TotalAmount      decimal.Decimal `json:"total_amount"      db:"total_amount"`
	SettlementStatus string          `json:"settlement_status" db:"settlement_status"`
	SettlementTime   time.Time       `json:"settlement_time"   db:"settlement_time"`
	// WalletDebited is true when the buyer's account was debited inside the
	// settlement transaction. In report mode the caller owns the debit.
	WalletDebited bool `json:"wallet_debited" db:"wallet_debited"`
}

// ExecuteRequest is the payload for buying a listed token.
type ExecuteRequest struct {
	TokenID string `json:"token_id"`
	BuyerID string `json:"buyer_id"`
}
