package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/service"
)

// SettlementHandler handles trade execution.
type SettlementHandler struct {
	engine *service.SettlementEngine
	actors *identity.ActorTokens
	logger *zap.Logger
}

// NewSettlementHandler creates a new SettlementHandler. actors may be nil.
func NewSettlementHandler(engine *service.SettlementEngine, actors *identity.ActorTokens, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{engine: engine, actors: actors, logger: logger}
}

// Register mounts the settlement routes on the given router group.
func (h *SettlementHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/settlements")
	{
		g.POST("/execute", identity.RequireActor(h.actors), h.Execute)
		g.GET("", h.ListSettlements)
	}
}

// Execute handles POST /settlements/execute.
func (h *SettlementHandler) Execute(c *gin.Context) {
	var req model.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}
	req.BuyerID = strings.TrimSpace(req.BuyerID)
	if !requireActingAs(c, req.BuyerID, false) {
		return
	}

	settlement, err := h.engine.Execute(c.Request.Context(), req.TokenID, req.BuyerID)
	if err != nil {
		respondError(c, h.logger, "execute settlement", err)
		return
	}
	RecordSettlement(settlement)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"settlement": settlement,
		"message":    "Trade executed and settled successfully",
	})
}

// ListSettlements handles GET /settlements.
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	settlements, err := h.engine.All(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list settlements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settlements": settlements, "total": len(settlements)})
}
