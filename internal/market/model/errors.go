package model

import (
	"errors"
	"fmt"
)

// Error kinds are stable, machine-readable names surfaced to API callers.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInvalidState      = "invalid_state"
	KindAuthorization     = "authorization"
	KindInsufficientFunds = "insufficient_funds"
	KindInternal          = "internal"
)

// ErrValidation is returned when the caller supplies malformed input.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrNotFound is returned when a crop, token, or settlement does not exist.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ErrInvalidState is returned when an operation is not legal for the token's
// current lifecycle state.
type ErrInvalidState struct {
	TokenID string
	Status  TokenStatus
	Op      string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("token %s cannot be %s: current status %s", e.TokenID, e.Op, e.Status)
}

// ErrAuthorization is returned when the acting identity does not match the
// party the operation requires.
type ErrAuthorization struct{ Msg string }

func (e *ErrAuthorization) Error() string { return e.Msg }

// ErrInsufficientFunds is returned when an enforced wallet debit would take a
// balance below zero.
type ErrInsufficientFunds struct {
	AccountID string
	Balance   string
	Required  string
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds in %s: balance %s, required %s", e.AccountID, e.Balance, e.Required)
}

// Kind maps err to its stable kind. Unrecognised errors are internal.
func Kind(err error) string {
	var (
		valErr   *ErrValidation
		nfErr    *ErrNotFound
		stateErr *ErrInvalidState
		authErr  *ErrAuthorization
		fundsErr *ErrInsufficientFunds
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &nfErr):
		return KindNotFound
	case errors.As(err, &stateErr):
		return KindInvalidState
	case errors.As(err, &authErr):
		return KindAuthorization
	case errors.As(err, &fundsErr):
		return KindInsufficientFunds
	}
	return KindInternal
}
