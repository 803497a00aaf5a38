package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
	"github.com/jmerrifield20/cropledger/internal/pricing"
)

// SettlementEngine executes purchases of listed tokens. It is the only
// component that moves a token to SOLD.
type SettlementEngine struct {
	*core
	oracle pricing.Oracle
	mode   WalletMode
}

type settlementExecuted struct {
	TokenID       string          `json:"token_id"`
	SettlementID  string          `json:"settlement_id"`
	Seller        string          `json:"seller"`
	Buyer         string          `json:"buyer"`
	Quantity      decimal.Decimal `json:"quantity"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	WalletDebited bool            `json:"wallet_debited"`
}

// Mode returns the configured wallet mode.
func (e *SettlementEngine) Mode() WalletMode { return e.mode }

// Execute sells a LISTED token to buyerID at the oracle price for its crop.
// Token transfer, settlement record, optional wallet movement and audit
// entry commit together or not at all.
func (e *SettlementEngine) Execute(ctx context.Context, tokenID, buyerID string) (*model.Settlement, error) {
	tokenID, buyerID = strings.TrimSpace(tokenID), strings.TrimSpace(buyerID)
	if err := required("token_id", tokenID); err != nil {
		return nil, err
	}
	if err := required("buyer_id", buyerID); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(tokenKey(tokenID))
	defer unlock()

	if e.mode == WalletEnforce {
		// The owner cannot change while the token lock is held, so the
		// seller read here is the seller the transaction will see.
		tok, err := e.store.GetToken(ctx, tokenID)
		if err != nil {
			return nil, notFound(err, "token", tokenID)
		}
		unlockAccounts := e.locks.LockAll(accountKey(buyerID), accountKey(tok.OwnerID))
		defer unlockAccounts()
	}

	var (
		settlement *model.Settlement
		entry      *ledger.Entry
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		tok, err := tx.GetTokenForUpdate(ctx, tokenID)
		if err != nil {
			return notFound(err, "token", tokenID)
		}
		if tok.Status != model.TokenListed {
			return &model.ErrInvalidState{TokenID: tokenID, Status: tok.Status, Op: "sold"}
		}
		if tok.OwnerID == buyerID {
			return &model.ErrAuthorization{Msg: "buyer " + buyerID + " already owns token " + tokenID}
		}

		crop, err := tx.GetCrop(ctx, tok.LinkedCropID)
		if err != nil {
			return fmt.Errorf("load crop %s for token %s: %w", tok.LinkedCropID, tokenID, err)
		}
		price, err := e.oracle.Price(ctx, crop.CropType, crop.MandiID)
		if err != nil {
			return fmt.Errorf("price %s at %s: %w", crop.CropType, crop.MandiID, err)
		}
		if !price.IsPositive() {
			return fmt.Errorf("price %s at %s: non-positive price %s", crop.CropType, crop.MandiID, price)
		}

		now := ledger.Timestamp(e.now())
		seller := tok.OwnerID
		s := &model.Settlement{
			SettlementID:     newID("SETTLEMENT"),
			TokenID:          tokenID,
			SellerID:         seller,
			BuyerID:          buyerID,
			Quantity:         crop.Quantity,
			PricePerKg:       price,
			TotalAmount:      crop.Quantity.Mul(price),
			SettlementStatus: model.SettlementCompleted,
			SettlementTime:   now,
		}

		if e.mode == WalletEnforce {
			if err := transfer(ctx, tx, buyerID, seller, s.TotalAmount, now); err != nil {
				return err
			}
			s.WalletDebited = true
		}

		if err := markSold(tok, buyerID, now); err != nil {
			return err
		}
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}
		if err := tx.InsertSettlement(ctx, s); err != nil {
			return err
		}
		appended, err := tx.Append(ctx, ledger.EventSettlementExecuted, buyerID, settlementExecuted{
			TokenID:       tokenID,
			SettlementID:  s.SettlementID,
			Seller:        seller,
			Buyer:         buyerID,
			Quantity:      s.Quantity,
			PricePerKg:    s.PricePerKg,
			TotalAmount:   s.TotalAmount,
			WalletDebited: s.WalletDebited,
		})
		if err != nil {
			return err
		}
		settlement, entry = s, appended
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("settlement executed",
		zap.String("settlement_id", settlement.SettlementID),
		zap.String("token_id", tokenID),
		zap.String("seller_id", settlement.SellerID),
		zap.String("buyer_id", buyerID),
		zap.String("total_amount", settlement.TotalAmount.String()),
		zap.Bool("wallet_debited", settlement.WalletDebited),
	)
	e.publish(ctx, entry)
	return settlement, nil
}

// All returns every settlement in execution order.
func (e *SettlementEngine) All(ctx context.Context) ([]*model.Settlement, error) {
	return e.store.ListSettlements(ctx)
}

// transfer moves amount from buyer to seller. Accounts are read for update
// in id order to match the in-process lock order.
func transfer(ctx context.Context, tx store.Tx, buyerID, sellerID string, amount decimal.Decimal, now time.Time) error {
	ids := []string{buyerID, sellerID}
	slices.Sort(ids)

	accounts := make(map[string]*model.Account, 2)
	for _, id := range ids {
		a, err := tx.GetAccountForUpdate(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			a = &model.Account{AccountID: id, Balance: decimal.Zero}
		case err != nil:
			return err
		}
		accounts[id] = a
	}

	buyer, seller := accounts[buyerID], accounts[sellerID]
	if buyer.Balance.LessThan(amount) {
		return &model.ErrInsufficientFunds{
			AccountID: buyerID,
			Balance:   buyer.Balance.String(),
			Required:  amount.String(),
		}
	}
	buyer.Balance = buyer.Balance.Sub(amount)
	seller.Balance = seller.Balance.Add(amount)
	buyer.UpdatedAt, seller.UpdatedAt = now, now

	for _, id := range ids {
		if err := tx.PutAccount(ctx, accounts[id]); err != nil {
			return err
		}
	}
	return nil
}
