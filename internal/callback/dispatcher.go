package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callgate/internal/calls"
	"callgate/internal/metrics"
)

// Dispatcher delivers status callbacks to requester endpoints.
//
// Ordering contract: notifications for one call id go out in enqueue order
// with at most one delivery in flight per call id; different call ids are
// fully concurrent (one drain goroutine per active call id). Retries use
// an explicit attempt counter plus a computed next-eligible time, not
// recursion; exhaustion is logged and counted, never propagated.
//
// Deliveries run on the dispatcher's own lifecycle context, never on the
// enqueuer's: a callback must outlive the HTTP request or event-loop
// iteration that produced it. Shutdown aborts in-flight retries only once
// its deadline expires.

// Notification is one pending status callback.
type Notification struct {
	URL    string
	Method string

	Call         calls.Snapshot
	TargetStatus calls.CallStatus
}

// Attempt tracks retry state for one in-flight notification.
type Attempt struct {
	CallID        string
	TargetStatus  calls.CallStatus
	AttemptCount  int
	NextAttemptAt time.Time
}

type Config struct {
	// MaxAttempts bounds deliveries per notification, first try included.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles per
	// attempt up to MaxDelay, with +/-10% jitter.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 10
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = time.Minute
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 10 * time.Second
	}
	return out
}

type Dispatcher struct {
	cfg     Config
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	// jitterFrac is injectable for deterministic tests. Returns a value
	// in [-0.1, 0.1).
	jitterFrac func() float64

	// ctx governs all deliveries; canceled only by Shutdown after its
	// drain deadline expires.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]*callQueue
	closed bool

	wg sync.WaitGroup
}

type callQueue struct {
	pending []Notification
	running bool
}

func NewDispatcher(cfg Config, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
		metrics: m,
		jitterFrac: func() float64 {
			return (rand.Float64() - 0.5) / 5
		},
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[string]*callQueue),
	}
}

// Enqueue appends n to its call's FIFO and starts a drain goroutine for
// that call id if none is running. Safe for concurrent use.
func (d *Dispatcher) Enqueue(n Notification) {
	if n.URL == "" {
		// Requester did not subscribe to status callbacks.
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("callback dropped: dispatcher closed", "call_id", n.Call.ID, "target_status", n.TargetStatus)
		return
	}
	q, ok := d.queues[n.Call.ID]
	if !ok {
		q = &callQueue{}
		d.queues[n.Call.ID] = q
	}
	q.pending = append(q.pending, n)
	start := !q.running
	if start {
		q.running = true
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if start {
		go d.drain(n.Call.ID)
	}
}

// Shutdown waits for in-flight queues to drain. If ctx expires first, the
// dispatcher's lifecycle context is canceled and remaining deliveries are
// aborted.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) drain(callID string) {
	ctx := d.ctx
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[callID]
		if q == nil || len(q.pending) == 0 {
			if q != nil {
				q.running = false
			}
			delete(d.queues, callID)
			d.mu.Unlock()
			return
		}
		n := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.deliver(ctx, n)

		select {
		case <-ctx.Done():
			// Remaining notifications are dropped on shutdown.
			d.mu.Lock()
			delete(d.queues, callID)
			d.mu.Unlock()
			return
		default:
		}
	}
}

// deliver runs the bounded retry loop for one notification.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	attempt := Attempt{CallID: n.Call.ID, TargetStatus: n.TargetStatus}

	for {
		attempt.AttemptCount++
		d.metrics.CallbackAttempt()

		err := d.send(ctx, n)
		if err == nil {
			d.metrics.CallbackDelivered("ok")
			d.log.Debug("callback delivered",
				"call_id", n.Call.ID,
				"target_status", n.TargetStatus,
				"attempts", attempt.AttemptCount,
			)
			return
		}

		if attempt.AttemptCount >= d.cfg.MaxAttempts {
			d.metrics.CallbackDelivered("exhausted")
			d.log.Error("callback delivery exhausted",
				"call_id", n.Call.ID,
				"target_status", n.TargetStatus,
				"attempts", attempt.AttemptCount,
				"err", err,
			)
			return
		}

		attempt.NextAttemptAt = time.Now().Add(d.backoff(attempt.AttemptCount))
		d.log.Debug("callback attempt failed",
			"call_id", n.Call.ID,
			"target_status", n.TargetStatus,
			"attempt", attempt.AttemptCount,
			"next_attempt_at", attempt.NextAttemptAt,
			"err", err,
		)

		timer := time.NewTimer(time.Until(attempt.NextAttemptAt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			d.metrics.CallbackDelivered("exhausted")
			return
		}
	}
}

// backoff doubles BaseDelay per completed attempt, capped at MaxDelay,
// with +/-10% jitter.
func (d *Dispatcher) backoff(attemptCount int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < attemptCount && delay < d.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > d.cfg.MaxDelay {
		delay = d.cfg.MaxDelay
	}
	delay += time.Duration(float64(delay) * d.jitterFrac())
	if delay < 0 {
		delay = 0
	}
	return delay
}

// send performs exactly one HTTP delivery. Any 2xx is success regardless
// of body; everything else, including transport errors, is failure.
func (d *Dispatcher) send(ctx context.Context, n Notification) error {
	method := strings.ToUpper(strings.TrimSpace(n.Method))
	if method == "" {
		method = http.MethodPost
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(reqCtx, http.MethodGet, withQuery(n), nil)
	} else {
		var body []byte
		body, err = json.Marshal(n.Call)
		if err != nil {
			return err
		}
		req, err = http.NewRequestWithContext(reqCtx, method, n.URL, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// withQuery folds the call snapshot into the callback URL's query string
// for GET-style subscribers.
func withQuery(n Notification) string {
	u, err := url.Parse(n.URL)
	if err != nil {
		return n.URL
	}
	q := u.Query()
	q.Set("id", n.Call.ID)
	q.Set("status", string(n.Call.Status))
	q.Set("from", n.Call.From)
	q.Set("to", n.Call.To)
	q.Set("direction", n.Call.Direction)
	if n.Call.ExternalSID != "" {
		q.Set("sid", n.Call.ExternalSID)
	}
	if n.Call.AccountSID != "" {
		q.Set("account_sid", n.Call.AccountSID)
	}
	if n.Call.APIVersion != "" {
		q.Set("api_version", n.Call.APIVersion)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// StatusError marks a non-2xx callback response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callback: endpoint returned http %d", e.Code)
}
