package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

// TokenService owns the token state machine up to LISTED. Only the
// settlement engine moves a token to SOLD.
type TokenService struct {
	*core
}

type tokenListed struct {
	TokenID  string `json:"token_id"`
	SellerID string `json:"seller_id"`
}

// mint builds the single token for a freshly registered crop.
func mint(crop *model.Crop, now time.Time) *model.Token {
	return &model.Token{
		TokenID:      newID("TOKEN"),
		LinkedCropID: crop.CropID,
		OwnerID:      crop.FarmerID,
		Status:       model.TokenCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// List offers a CREATED token for sale. Only the owner may list it.
// Checks run in order: existence, ownership, status.
func (s *TokenService) List(ctx context.Context, tokenID, sellerID string) (*model.Token, error) {
	tokenID, sellerID = strings.TrimSpace(tokenID), strings.TrimSpace(sellerID)
	if err := required("token_id", tokenID); err != nil {
		return nil, err
	}
	if err := required("seller_id", sellerID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tokenKey(tokenID))
	defer unlock()

	var (
		listed *model.Token
		entry  *ledger.Entry
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		tok, err := tx.GetTokenForUpdate(ctx, tokenID)
		if err != nil {
			return notFound(err, "token", tokenID)
		}
		if tok.OwnerID != sellerID {
			return &model.ErrAuthorization{Msg: "seller " + sellerID + " does not own token " + tokenID}
		}
		if !tok.Status.CanTransition(model.TokenListed) {
			return &model.ErrInvalidState{TokenID: tokenID, Status: tok.Status, Op: "listed"}
		}

		tok.Status = model.TokenListed
		tok.UpdatedAt = ledger.Timestamp(s.now())
		if err := tx.UpdateToken(ctx, tok); err != nil {
			return err
		}
		e, err := tx.Append(ctx, ledger.EventTokenListed, sellerID, tokenListed{
			TokenID:  tokenID,
			SellerID: sellerID,
		})
		if err != nil {
			return err
		}
		listed, entry = tok, e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("token listed", zap.String("token_id", tokenID), zap.String("seller_id", sellerID))
	s.publish(ctx, entry)
	return listed, nil
}

// markSold moves a LISTED token to SOLD under its new owner. It is only
// called from inside the settlement transaction.
func markSold(tok *model.Token, buyerID string, now time.Time) error {
	if !tok.Status.CanTransition(model.TokenSold) {
		return &model.ErrInvalidState{TokenID: tok.TokenID, Status: tok.Status, Op: "sold"}
	}
	tok.Status = model.TokenSold
	tok.OwnerID = buyerID
	tok.UpdatedAt = now
	return nil
}

// Get returns a token by id.
func (s *TokenService) Get(ctx context.Context, tokenID string) (*model.Token, error) {
	tok, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, notFound(err, "token", tokenID)
	}
	return tok, nil
}

// All returns every token in mint order.
func (s *TokenService) All(ctx context.Context) ([]*model.Token, error) {
	return s.store.ListTokens(ctx, store.TokenFilter{})
}

// QueryByStatus returns tokens in the given state, in mint order.
func (s *TokenService) QueryByStatus(ctx context.Context, status model.TokenStatus) ([]*model.Token, error) {
	return s.store.ListTokens(ctx, store.TokenFilter{Status: status})
}

// QueryByOwner returns tokens currently owned by ownerID, in mint order.
func (s *TokenService) QueryByOwner(ctx context.Context, ownerID string) ([]*model.Token, error) {
	if err := required("owner_id", ownerID); err != nil {
		return nil, err
	}
	return s.store.ListTokens(ctx, store.TokenFilter{OwnerID: ownerID})
}
