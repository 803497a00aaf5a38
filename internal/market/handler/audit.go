package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

// AuditHandler exposes read-only endpoints for the audit chain.
type AuditHandler struct {
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(l ledger.Ledger, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{ledger: l, logger: logger}
}

// Register mounts the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit")
	{
		a.GET("", h.Overview)
		a.GET("/trail", h.Trail)
		a.GET("/verify", h.Verify)
		a.GET("/entries/:seq", h.GetEntry)
	}
}

// Overview handles GET /audit: every entry plus the current root hash.
func (h *AuditHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := h.ledger.Entries(ctx)
	if err != nil {
		respondError(c, h.logger, "audit entries", err)
		return
	}
	root, err := h.ledger.Root(ctx)
	if err != nil {
		respondError(c, h.logger, "audit root", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "root": root})
}

// Trail handles GET /audit/trail.
func (h *AuditHandler) Trail(c *gin.Context) {
	entries, err := h.ledger.Entries(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "audit trail", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"audit_trail":  entries,
		"total_events": len(entries),
	})
}

// Verify handles GET /audit/verify. A broken chain is still a 200: the
// report is the answer.
func (h *AuditHandler) Verify(c *gin.Context) {
	report, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "verify audit trail", err)
		return
	}
	RecordVerify(report.Valid)
	if !report.Valid {
		h.logger.Warn("audit trail integrity check failed",
			zap.Int64("broken_seq", report.BrokenSeq),
			zap.String("reason", report.Message),
		)
	}
	c.JSON(http.StatusOK, report)
}

// GetEntry handles GET /audit/entries/:seq.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		c.JSON(http.StatusBadRequest, errorBody(model.KindValidation, "seq must be a positive integer"))
		return
	}

	entry, err := h.ledger.Get(c.Request.Context(), seq)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody(model.KindNotFound, "audit entry "+c.Param("seq")+" not found"))
		return
	}
	if err != nil {
		respondError(c, h.logger, "get audit entry", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
