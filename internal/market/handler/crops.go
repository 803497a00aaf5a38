package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/service"
)

// CropHandler handles crop registration and lookup.
type CropHandler struct {
	crops  *service.CropRegistry
	actors *identity.ActorTokens // nil = body ids are trusted
	logger *zap.Logger
}

// NewCropHandler creates a new CropHandler. actors may be nil.
func NewCropHandler(crops *service.CropRegistry, actors *identity.ActorTokens, logger *zap.Logger) *CropHandler {
	return &CropHandler{crops: crops, actors: actors, logger: logger}
}

// Register mounts the crop routes on the given router group.
func (h *CropHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/crops")
	{
		g.POST("/register", identity.RequireActor(h.actors), h.RegisterCrop)
		g.GET("", h.ListCrops)
		g.GET("/:crop_id", h.GetCrop)
	}
}

// RegisterCrop handles POST /crops/register.
func (h *CropHandler) RegisterCrop(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}
	req.FarmerID = strings.TrimSpace(req.FarmerID)
	if !requireActingAs(c, req.FarmerID, false) {
		return
	}

	crop, token, err := h.crops.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "register crop", err)
		return
	}
	RecordMutation(ledger.EventCropRegistered)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"crop":    crop,
		"token":   token,
		"message": "Crop registered and tokenized successfully",
	})
}

// ListCrops handles GET /crops.
func (h *CropHandler) ListCrops(c *gin.Context) {
	crops, err := h.crops.All(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list crops", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crops": crops, "total": len(crops)})
}

// GetCrop handles GET /crops/:crop_id.
func (h *CropHandler) GetCrop(c *gin.Context) {
	crop, err := h.crops.Get(c.Request.Context(), c.Param("crop_id"))
	if err != nil {
		respondError(c, h.logger, "get crop", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "crop": crop})
}
