package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/service"
)

// WalletHandler handles wallet balances and deposits.
type WalletHandler struct {
	accounts *service.AccountService
	actors   *identity.ActorTokens
	logger   *zap.Logger
}

// NewWalletHandler creates a new WalletHandler. actors may be nil.
func NewWalletHandler(accounts *service.AccountService, actors *identity.ActorTokens, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{accounts: accounts, actors: actors, logger: logger}
}

// Register mounts the wallet routes on the given router group.
func (h *WalletHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/wallets")
	{
		g.GET("/:account_id", h.Balance)
		g.POST("/:account_id/deposit", identity.RequireActor(h.actors), h.Deposit)
	}
}

// Balance handles GET /wallets/:account_id.
func (h *WalletHandler) Balance(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		respondError(c, h.logger, "wallet balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"account_id": account.AccountID,
		"balance":    account.Balance,
	})
}

// Deposit handles POST /wallets/:account_id/deposit. Admin actor tokens may
// fund any account.
func (h *WalletHandler) Deposit(c *gin.Context) {
	accountID := c.Param("account_id")
	var req model.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}
	if !requireActingAs(c, accountID, true) {
		return
	}

	account, err := h.accounts.Deposit(c.Request.Context(), accountID, req.Amount)
	if err != nil {
		respondError(c, h.logger, "wallet deposit", err)
		return
	}
	RecordMutation(ledger.EventWalletDeposited)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"account_id": account.AccountID,
		"balance":    account.Balance,
	})
}
