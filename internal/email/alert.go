package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/health"
)

// Alerter mails operators when the integrity monitor degrades.
type Alerter struct {
	sender     Sender
	recipients []string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAlerter returns an Alerter sending to recipients through sender.
func NewAlerter(sender Sender, recipients []string, logger *zap.Logger) *Alerter {
	return &Alerter{sender: sender, recipients: recipients, timeout: 30 * time.Second, logger: logger}
}

// AuditDegraded is a health.DegradedFunc. Delivery runs in the background.
func (a *Alerter) AuditDegraded(ctx context.Context, st health.Status) {
	if len(a.recipients) == 0 {
		return
	}
	subject, body := Compose(st)
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.sender.Send(ctx, a.recipients, subject, body); err != nil {
			a.logger.Error("failed to send audit alert", zap.Error(err))
		}
	}()
}

// Compose renders the alert for st.
func Compose(st health.Status) (subject, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "The cropledger audit trail failed verification at %s.\n\n", st.LastCheck.UTC().Format(time.RFC3339))

	switch {
	case st.Report != nil && !st.Report.Valid:
		subject = fmt.Sprintf("[cropledger] audit trail broken at seq %d", st.Report.BrokenSeq)
		fmt.Fprintf(&b, "Result:  %s\n", st.Report.Message)
		fmt.Fprintf(&b, "Entries: %d\n", st.Report.TotalEntries)
		fmt.Fprintf(&b, "First broken entry: %d\n", st.Report.BrokenSeq)
	default:
		subject = "[cropledger] audit trail could not be verified"
		fmt.Fprintf(&b, "Error: %s\n", st.Error)
		fmt.Fprintf(&b, "Consecutive failures: %d\n", st.ConsecutiveFailures)
	}
	b.WriteString("\nMutations continue to be accepted. Investigate before trusting settlement history.\n")
	return subject, b.String()
}
