package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

// RegulatoryNotes are attached to every compliance report.
var RegulatoryNotes = []string{
	"No real financial transactions executed",
	"All settlements are simulated",
	"KYC/AML awareness implemented via farmer_id tracking",
	"Full audit trail maintained with tamper-evidence",
	"Tokens are non-speculative and settlement-only",
}

// Stats summarises ledger activity.
type Stats struct {
	TotalCrops            int                       `json:"total_crops"`
	TotalTokens           int                       `json:"total_tokens"`
	TotalSettlements      int                       `json:"total_settlements"`
	TokenStatusBreakdown  map[model.TokenStatus]int `json:"token_status_breakdown"`
	TotalSettlementVolume decimal.Decimal           `json:"total_settlement_volume"`
	AvgSettlementValue    decimal.Decimal           `json:"avg_settlement_value"`
	AuditEntries          int                       `json:"audit_entries"`
}

// ComplianceReport is the regulator-facing summary.
type ComplianceReport struct {
	AuditTrailIntegrity       *ledger.Report `json:"audit_trail_integrity"`
	TotalRegisteredFarmers    int            `json:"total_registered_farmers"`
	TotalActiveTokens         int            `json:"total_active_tokens"`
	TotalCompletedSettlements int            `json:"total_completed_settlements"`
	RegulatoryNotes           []string       `json:"regulatory_notes"`
}

// Reports computes read-only summaries.
type Reports struct {
	*core
}

// Stats computes activity totals. The average is rounded to 2 places.
func (r *Reports) Stats(ctx context.Context) (*Stats, error) {
	crops, err := r.store.ListCrops(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := r.store.ListTokens(ctx, store.TokenFilter{})
	if err != nil {
		return nil, err
	}
	settlements, err := r.store.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := r.store.Len(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalCrops:       len(crops),
		TotalTokens:      len(tokens),
		TotalSettlements: len(settlements),
		TokenStatusBreakdown: map[model.TokenStatus]int{
			model.TokenCreated: 0,
			model.TokenListed:  0,
			model.TokenSold:    0,
		},
		TotalSettlementVolume: decimal.Zero,
		AvgSettlementValue:    decimal.Zero,
		AuditEntries:          entries,
	}
	for _, t := range tokens {
		st.TokenStatusBreakdown[t.Status]++
	}
	for _, s := range settlements {
		st.TotalSettlementVolume = st.TotalSettlementVolume.Add(s.TotalAmount)
	}
	if n := len(settlements); n > 0 {
		st.AvgSettlementValue = st.TotalSettlementVolume.Div(decimal.NewFromInt(int64(n))).Round(2)
	}
	return st, nil
}

// Compliance verifies the audit trail and summarises participation.
func (r *Reports) Compliance(ctx context.Context) (*ComplianceReport, error) {
	report, err := r.store.Verify(ctx)
	if err != nil {
		return nil, err
	}
	crops, err := r.store.ListCrops(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := r.store.ListTokens(ctx, store.TokenFilter{})
	if err != nil {
		return nil, err
	}
	settlements, err := r.store.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}

	farmers := make(map[string]struct{}, len(crops))
	for _, c := range crops {
		farmers[c.FarmerID] = struct{}{}
	}
	active := 0
	for _, t := range tokens {
		if t.Status == model.TokenCreated || t.Status == model.TokenListed {
			active++
		}
	}
	completed := 0
	for _, s := range settlements {
		if s.SettlementStatus == model.SettlementCompleted {
			completed++
		}
	}

	return &ComplianceReport{
		AuditTrailIntegrity:       report,
		TotalRegisteredFarmers:    len(farmers),
		TotalActiveTokens:         active,
		TotalCompletedSettlements: completed,
		RegulatoryNotes:           RegulatoryNotes,
	}, nil
}

// Verify checks the whole audit chain.
func (r *Reports) Verify(ctx context.Context) (*ledger.Report, error) {
	return r.store.Verify(ctx)
}
