package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/health"
	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/market/service"
	"github.com/jmerrifield20/cropledger/internal/pricing"
)

// Version is reported by GET /.
const Version = "1.0.0"

// RouterConfig holds the transport settings for NewRouter.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimitRPS float64 // 0 disables rate limiting
	MaxBodyBytes int64   // 0 means 1 MiB
	Actors       *identity.ActorTokens
	LogRequests  bool
	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For is believed. Empty trusts none, so the client IP used
	// for rate limiting is always the peer address.
	TrustedProxies []string
	// Integrity, when set, is reported by /healthz; a degraded audit trail
	// turns the probe into a 503.
	Integrity *health.Monitor
}

// NewRouter builds the HTTP engine: middleware, /healthz, /metrics, and the
// ledger API under /api. ctx bounds background work such as rate-limiter
// sweeps.
func NewRouter(ctx context.Context, m *service.Market, oracle pricing.Oracle, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", zap.Strings("trusted_proxies", cfg.TrustedProxies), zap.Error(err))
		router.SetTrustedProxies(nil) //nolint:errcheck
	}
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(securityHeaders())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(ctx, cfg.RateLimitRPS, max(1, int(cfg.RateLimitRPS*2))))
	}
	router.Use(PrometheusMiddleware())
	if cfg.LogRequests {
		router.Use(requestLogger(logger))
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Crop Ledger API",
			"status":  "active",
			"version": Version,
		})
	})
	router.GET("/healthz", func(c *gin.Context) {
		if _, err := m.Store().Len(c.Request.Context()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		if cfg.Integrity == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		st := cfg.Integrity.Status()
		if st.State == health.StateDegraded {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "audit_trail": st})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "audit_trail": st})
	})
	router.GET("/metrics", MetricsHandler())

	api := router.Group("/api")
	NewCropHandler(m.Crops, cfg.Actors, logger).Register(api)
	NewTokenHandler(m.Tokens, m.Crops, cfg.Actors, logger).Register(api)
	NewSettlementHandler(m.Settlements, cfg.Actors, logger).Register(api)
	NewWalletHandler(m.Accounts, cfg.Actors, logger).Register(api)
	NewAuditHandler(m.Store(), logger).Register(api)
	NewReportHandler(m.Reports, oracle, logger).Register(api)

	return router
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
