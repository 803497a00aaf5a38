package model

import (
	"strings"
	"time"
)

// TokenStatus is the lifecycle state of a crop token.
// The only legal transitions are CREATED → LISTED → SOLD.
type TokenStatus string

const (
	TokenCreated TokenStatus = "CREATED"
	TokenListed  TokenStatus = "LISTED"
	TokenSold    TokenStatus = "SOLD"
)

// ParseTokenStatus accepts any letter case.
func ParseTokenStatus(s string) (TokenStatus, bool) {
	st := TokenStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case TokenCreated, TokenListed, TokenSold:
		return st, true
	}
	return "", false
}

// CanTransition reports whether a token may move from s to next.
func (s TokenStatus) CanTransition(next TokenStatus) bool {
	switch s {
	case TokenCreated:
		return next == TokenListed
	case TokenListed:
		return next == TokenSold
	}
	return false
}

// Token is the unit of ownership for one registered crop lot.
type Token struct {
	TokenID      string      `json:"token_id"       db:"token_id"`
	LinkedCropID string      `json:"linked_crop_id" db:"linked_crop_id"`
	OwnerID      string      `json:"owner_id"       db:"owner_id"`
	Status       TokenStatus `json:"status"         db:"status"`
	CreatedAt    time.Time   `json:"created_at"     db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"     db:"updated_at"`
}

// ListRequest is the payload for listing a token for sale.
type ListRequest struct {
	TokenID  string `json:"token_id"`
	SellerID string `json:"seller_id"`
}
