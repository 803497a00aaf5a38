// Package handler exposes the crop ledger over HTTP with Gin.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

var kindStatus = map[string]int{
	model.KindValidation:        http.StatusBadRequest,
	model.KindNotFound:          http.StatusNotFound,
	model.KindInvalidState:      http.StatusConflict,
	model.KindAuthorization:     http.StatusForbidden,
	model.KindInsufficientFunds: http.StatusUnprocessableEntity,
}

// respondError writes err using the shared error body. Internal errors are
// logged and their detail withheld from the client.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	kind := model.Kind(err)
	status, ok := kindStatus[kind]
	msg := err.Error()
	if !ok {
		status = http.StatusInternalServerError
		msg = "internal error"
		logger.Error(op, zap.Error(err))
	} else {
		logger.Debug(op+" rejected", zap.String("kind", kind), zap.Error(err))
	}
	c.JSON(status, errorBody(kind, msg))
}

func respondInvalidBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody(model.KindValidation, "invalid request body: "+err.Error()))
}

func errorBody(kind, msg string) gin.H {
	return gin.H{
		"success": false,
		"message": msg,
		"error":   gin.H{"kind": kind, "message": msg},
	}
}

// requireActingAs rejects the request unless the caller may act as id.
func requireActingAs(c *gin.Context, id string, allowAdmin bool) bool {
	if identity.ActingAs(c, id, allowAdmin) {
		return true
	}
	msg := "actor token does not match " + id
	c.JSON(http.StatusForbidden, errorBody(model.KindAuthorization, msg))
	return false
}
