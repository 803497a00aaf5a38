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

// TokenHandler handles token listing and queries.
type TokenHandler struct {
	tokens *service.TokenService
	crops  *service.CropRegistry
	actors *identity.ActorTokens
	logger *zap.Logger
}

// NewTokenHandler creates a new TokenHandler. actors may be nil.
func NewTokenHandler(tokens *service.TokenService, crops *service.CropRegistry, actors *identity.ActorTokens, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, crops: crops, actors: actors, logger: logger}
}

// Register mounts the token routes on the given router group.
func (h *TokenHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/tokens")
	{
		g.GET("", h.ListTokens)
		g.GET("/status/:status", h.ByStatus)
		g.GET("/owner/:owner_id", h.ByOwner)
		g.GET("/:token_id", h.GetToken)
		g.POST("/list", identity.RequireActor(h.actors), h.ListForSale)
	}
}

// ListForSale handles POST /tokens/list.
func (h *TokenHandler) ListForSale(c *gin.Context) {
	var req model.ListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}
	req.SellerID = strings.TrimSpace(req.SellerID)
	if !requireActingAs(c, req.SellerID, false) {
		return
	}

	token, err := h.tokens.List(c.Request.Context(), req.TokenID, req.SellerID)
	if err != nil {
		respondError(c, h.logger, "list token", err)
		return
	}
	RecordMutation(ledger.EventTokenListed)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token listed successfully",
		"token":   token,
	})
}

// ListTokens handles GET /tokens.
func (h *TokenHandler) ListTokens(c *gin.Context) {
	tokens, err := h.tokens.All(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list tokens", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": tokens, "total": len(tokens)})
}

// ByStatus handles GET /tokens/status/:status. The status is case-insensitive.
func (h *TokenHandler) ByStatus(c *gin.Context) {
	status, ok := model.ParseTokenStatus(c.Param("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody(model.KindValidation,
			"status must be one of CREATED, LISTED, SOLD"))
		return
	}
	tokens, err := h.tokens.QueryByStatus(c.Request.Context(), status)
	if err != nil {
		respondError(c, h.logger, "query tokens by status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": tokens, "total": len(tokens)})
}

// ByOwner handles GET /tokens/owner/:owner_id.
func (h *TokenHandler) ByOwner(c *gin.Context) {
	tokens, err := h.tokens.QueryByOwner(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		respondError(c, h.logger, "query tokens by owner", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tokens": tokens, "total": len(tokens)})
}

// GetToken handles GET /tokens/:token_id and includes the linked crop.
func (h *TokenHandler) GetToken(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.tokens.Get(ctx, c.Param("token_id"))
	if err != nil {
		respondError(c, h.logger, "get token", err)
		return
	}
	crop, err := h.crops.Get(ctx, token.LinkedCropID)
	if err != nil {
		respondError(c, h.logger, "get token crop", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "crop": crop})
}
