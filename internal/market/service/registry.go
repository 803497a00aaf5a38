package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

// CropRegistry registers crop lots and mints their tokens.
type CropRegistry struct {
	*core
}

// cropRegistered is the audit payload for EventCropRegistered.
type cropRegistered struct {
	CropID       string          `json:"crop_id"`
	TokenID      string          `json:"token_id"`
	CropType     string          `json:"crop_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	QualityGrade string          `json:"quality_grade"`
	MandiID      string          `json:"mandi_id"`
}

// Register stores a new crop and mints its token in one transaction.
// The token starts CREATED and is owned by the farmer.
func (r *CropRegistry) Register(ctx context.Context, req model.RegisterRequest) (*model.Crop, *model.Token, error) {
	req, err := validateRegister(req)
	if err != nil {
		return nil, nil, err
	}

	now := ledger.Timestamp(r.now())
	crop := &model.Crop{
		CropID:       newID("CROP_" + idSegment(req.CropType)),
		CropType:     req.CropType,
		Quantity:     req.Quantity,
		QualityGrade: req.QualityGrade,
		MandiID:      req.MandiID,
		FarmerID:     req.FarmerID,
		RegisteredAt: now,
	}
	token := mint(crop, now)

	var entry *ledger.Entry
	err = r.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertCrop(ctx, crop); err != nil {
			return err
		}
		if err := tx.InsertToken(ctx, token); err != nil {
			return err
		}
		e, err := tx.Append(ctx, ledger.EventCropRegistered, crop.FarmerID, cropRegistered{
			CropID:       crop.CropID,
			TokenID:      token.TokenID,
			CropType:     crop.CropType,
			Quantity:     crop.Quantity,
			QualityGrade: crop.QualityGrade,
			MandiID:      crop.MandiID,
		})
		entry = e
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	r.logger.Info("crop registered",
		zap.String("crop_id", crop.CropID),
		zap.String("token_id", token.TokenID),
		zap.String("farmer_id", crop.FarmerID),
		zap.String("quantity", crop.Quantity.String()),
	)
	r.publish(ctx, entry)
	return crop, token, nil
}

// Get returns a crop by id.
func (r *CropRegistry) Get(ctx context.Context, cropID string) (*model.Crop, error) {
	c, err := r.store.GetCrop(ctx, cropID)
	if err != nil {
		return nil, notFound(err, "crop", cropID)
	}
	return c, nil
}

// All returns every crop in registration order.
func (r *CropRegistry) All(ctx context.Context) ([]*model.Crop, error) {
	return r.store.ListCrops(ctx)
}

func validateRegister(req model.RegisterRequest) (model.RegisterRequest, error) {
	req.CropType = strings.TrimSpace(req.CropType)
	req.QualityGrade = strings.TrimSpace(req.QualityGrade)
	req.MandiID = strings.TrimSpace(req.MandiID)
	req.FarmerID = strings.TrimSpace(req.FarmerID)

	for _, f := range []struct{ name, value string }{
		{"crop_type", req.CropType},
		{"mandi_id", req.MandiID},
		{"farmer_id", req.FarmerID},
	} {
		if err := required(f.name, f.value); err != nil {
			return req, err
		}
	}
	if !req.Quantity.IsPositive() {
		return req, &model.ErrValidation{Msg: "quantity must be greater than zero"}
	}
	if !model.ValidGrade(req.QualityGrade) {
		return req, &model.ErrValidation{Msg: "quality_grade must be one of A, B, C"}
	}
	return req, nil
}
