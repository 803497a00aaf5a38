// Package webhooks pushes committed ledger events to configured HTTP
// receivers. Bodies are signed with HMAC-SHA256 over the raw JSON using the
// subscription's secret and sent in the X-Cropledger-Signature header.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/health"
	"github.com/jmerrifield20/cropledger/internal/ledger"
)

// SignatureHeader carries "sha256=<hex hmac>" of the request body.
const SignatureHeader = "X-Cropledger-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher fans events out to subscriptions asynchronously, retrying
// failed deliveries with backoff.
type Dispatcher struct {
	subs       []Subscription
	httpClient *http.Client
	retries    []time.Duration
	onMetrics  MetricsRecorder
	onDelivery func(Delivery)
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewDispatcher validates subs and returns a Dispatcher for them.
func NewDispatcher(subs []Subscription, logger *zap.Logger) (*Dispatcher, error) {
	for i, s := range subs {
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("webhook %d: invalid url %q", i, s.URL)
		}
		if s.Secret == "" {
			return nil, fmt.Errorf("webhook %d (%s): secret is required", i, s.URL)
		}
	}
	return &Dispatcher{
		subs:       subs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retries:    []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second},
		logger:     logger,
	}, nil
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) { d.onMetrics = fn }

// SetRetryDelays replaces the waits between attempts. The number of
// attempts is len(delays)+1.
func (d *Dispatcher) SetRetryDelays(delays ...time.Duration) { d.retries = delays }

// SetDeliveryHook is called after every attempt.
func (d *Dispatcher) SetDeliveryHook(fn func(Delivery)) { d.onDelivery = fn }

// Publish dispatches a committed audit entry. It satisfies the market's
// event sink and never blocks on the network.
func (d *Dispatcher) Publish(ctx context.Context, e *ledger.Entry) {
	d.Dispatch(ctx, Event{
		Type:      string(e.EventType),
		Seq:       e.Seq,
		Actor:     e.Actor,
		Timestamp: e.Timestamp,
		Data:      json.RawMessage(e.Data),
		Hash:      e.CurrentHash,
	})
}

// AuditDegraded is a health.DegradedFunc that reports a broken or
// unverifiable audit trail.
func (d *Dispatcher) AuditDegraded(ctx context.Context, st health.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		d.logger.Error("webhook: marshal health status", zap.Error(err))
		return
	}
	d.Dispatch(ctx, Event{Type: EventAuditDegraded, Timestamp: st.LastCheck, Data: data})
}

// Dispatch sends ev to every subscription that wants it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	// Deliveries outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, sub := range d.subs {
		if !sub.Wants(ev.Type) {
			continue
		}
		d.wg.Add(1)
		go func(sub Subscription) {
			defer d.wg.Done()
			d.deliver(ctx, sub, ev.Type, body)
		}(sub)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, eventType string, body []byte) {
	signature := Sign(body, sub.Secret)
	attempts := len(d.retries) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.retries[attempt-2])
		}

		status, err := d.post(ctx, sub.URL, body, signature)
		del := Delivery{URL: sub.URL, EventType: eventType, Attempt: attempt, StatusCode: status, Success: err == nil}
		if err != nil {
			del.Error = err.Error()
		}
		if d.onDelivery != nil {
			d.onDelivery(del)
		}
		if d.onMetrics != nil {
			d.onMetrics(del.Success)
		}
		if del.Success {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.String("event", eventType),
			zap.Int("attempt", attempt),
			zap.String("error", del.Error),
		)
	}
}

func (d *Dispatcher) post(ctx context.Context, target string, body []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign computes the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret. Receivers
// written in Go can use it directly.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
