// Package email sends operator alerts when the audit trail stops verifying.
package email

import "context"

// Sender delivers a plain-text message to a set of recipients.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}
