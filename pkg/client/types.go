package client

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Crop is a registered physical lot.
type Crop struct {
	CropID       string          `json:"crop_id"`
	CropType     string          `json:"crop_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	QualityGrade string          `json:"quality_grade"`
	MandiID      string          `json:"mandi_id"`
	FarmerID     string          `json:"farmer_id"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Token is the tradeable claim minted for a crop.
type Token struct {
	TokenID      string    `json:"token_id"`
	LinkedCropID string    `json:"linked_crop_id"`
	OwnerID      string    `json:"owner_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Token statuses.
const (
	StatusCreated = "CREATED"
	StatusListed  = "LISTED"
	StatusSold    = "SOLD"
)

// Settlement records one executed trade.
type Settlement struct {
	SettlementID     string          `json:"settlement_id"`
	TokenID          string          `json:"token_id"`
	SellerID         string          `json:"seller_id"`
	BuyerID          string          `json:"buyer_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	PricePerKg       decimal.Decimal `json:"price_per_kg"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	SettlementStatus string          `json:"settlement_status"`
	SettlementTime   time.Time       `json:"settlement_time"`
	WalletDebited    bool            `json:"wallet_debited"`
}

// AuditEntry is one link of the hash-chained audit trail.
type AuditEntry struct {
	Seq          int64           `json:"seq"`
	EventType    string          `json:"event_type"`
	Actor        string          `json:"actor"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
}

// VerifyReport is the server's verdict on the audit trail.
type VerifyReport struct {
	Valid        bool   `json:"valid"`
	Message      string `json:"message"`
	TotalEntries int    `json:"total_entries"`
	BrokenSeq    int64  `json:"broken_seq,omitempty"`
}

// Stats summarises market activity.
type Stats struct {
	TotalCrops            int             `json:"total_crops"`
	TotalTokens           int             `json:"total_tokens"`
	TotalSettlements      int             `json:"total_settlements"`
	TokenStatusBreakdown  map[string]int  `json:"token_status_breakdown"`
	TotalSettlementVolume decimal.Decimal `json:"total_settlement_volume"`
	AvgSettlementValue    decimal.Decimal `json:"avg_settlement_value"`
	AuditEntries          int             `json:"audit_entries"`
}

// ComplianceReport bundles the integrity verdict with market totals.
type ComplianceReport struct {
	AuditTrailIntegrity       VerifyReport `json:"audit_trail_integrity"`
	TotalRegisteredFarmers    int          `json:"total_registered_farmers"`
	TotalActiveTokens         int          `json:"total_active_tokens"`
	TotalCompletedSettlements int          `json:"total_completed_settlements"`
	RegulatoryNotes           []string     `json:"regulatory_notes"`
}

// Wallet is an account balance.
type Wallet struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// RegisterCropRequest is the payload for RegisterCrop.
type RegisterCropRequest struct {
	CropType     string          `json:"crop_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	QualityGrade string          `json:"quality_grade"`
	MandiID      string          `json:"mandi_id"`
	FarmerID     string          `json:"farmer_id"`
}

// RegisterCropResult holds the crop and its freshly minted token.
type RegisterCropResult struct {
	Crop    Crop   `json:"crop"`
	Token   Token  `json:"token"`
	Message string `json:"message"`
}
