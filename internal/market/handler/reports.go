package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/service"
	"github.com/jmerrifield20/cropledger/internal/pricing"
)

// ReportHandler serves stats, the compliance report and price quotes.
type ReportHandler struct {
	reports *service.Reports
	oracle  pricing.Oracle
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.Reports, oracle pricing.Oracle, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, oracle: oracle, logger: logger}
}

// Register mounts the report routes on the given router group.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Stats)
	rg.GET("/compliance/report", h.Compliance)
	rg.GET("/prices", h.Price)
}

// Stats handles GET /stats.
func (h *ReportHandler) Stats(c *gin.Context) {
	stats, err := h.reports.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// Compliance handles GET /compliance/report.
func (h *ReportHandler) Compliance(c *gin.Context) {
	report, err := h.reports.Compliance(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "compliance report", err)
		return
	}
	RecordVerify(report.AuditTrailIntegrity.Valid)
	c.JSON(http.StatusOK, gin.H{"success": true, "compliance_report": report})
}

// Price handles GET /prices?crop_type=&mandi_id=.
func (h *ReportHandler) Price(c *gin.Context) {
	cropType := strings.ToLower(strings.TrimSpace(c.Query("crop_type")))
	mandiID := strings.TrimSpace(c.Query("mandi_id"))
	if cropType == "" {
		c.JSON(http.StatusBadRequest, errorBody(model.KindValidation, "crop_type is required"))
		return
	}

	price, err := h.oracle.Price(c.Request.Context(), cropType, mandiID)
	if err != nil {
		respondError(c, h.logger, "price lookup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"crop_type":    cropType,
		"mandi_id":     mandiID,
		"price_per_kg": price,
	})
}
