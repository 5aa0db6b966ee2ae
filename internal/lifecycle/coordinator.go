package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"callgate/internal/callback"
	"callgate/internal/calls"
	"callgate/internal/diag"
	"callgate/internal/metrics"
	"callgate/internal/routing"
	"callgate/internal/telephony"

	"github.com/google/uuid"
)

// Coordinator owns the call lifecycle: it originates calls, consumes the
// switch event feed, applies transitions through the store's CAS and hands
// committed transitions to the callback dispatcher.
//
// Error policy (request path vs event path):
// - Originate/Cancel surface typed errors synchronously.
// - Everything on the event path is absorbed: stale transitions are
//   logged at debug, invalid transitions are logged and flagged for
//   diagnostics, and neither ever stops the loop or other calls.

// ErrCapacityExhausted is returned by Originate when the per-account
// concurrent call cap is reached.
var ErrCapacityExhausted = errors.New("lifecycle: account call capacity exhausted")

// Notifier receives committed transition notifications. Satisfied by
// *callback.Dispatcher. Deliberately context-free: a callback's delivery
// must outlive the request or loop iteration that committed the
// transition.
type Notifier interface {
	Enqueue(n callback.Notification)
}

// Deduper is an optional fast-path filter for replayed switch events.
// The store's per-event-id CAS remains the source of truth.
//
// Seen must be read-only. The coordinator calls Mark only after the store
// has committed (or reported the event already applied); marking earlier
// would burn the event id when the store fails transiently and the
// switch's at-least-once retry would be dropped for good.
type Deduper interface {
	Seen(ctx context.Context, callID, eventID string) (bool, error)
	Mark(ctx context.Context, callID, eventID string) error
}

// Limiter is an optional per-account concurrent call cap.
type Limiter interface {
	Acquire(ctx context.Context, accountSID string) (bool, error)
	Release(ctx context.Context, accountSID string)
}

type Config struct {
	// EventQueueSize bounds the switch event queue. A full queue sheds
	// events back to the switch (it will retry; the feed is
	// at-least-once).
	EventQueueSize int

	// DialTimeout bounds one originate round-trip to the switch.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.EventQueueSize <= 0 {
		out.EventQueueSize = 1024
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 15 * time.Second
	}
	return out
}

type Coordinator struct {
	cfg      Config
	store    calls.Store
	gateway  telephony.Gateway
	resolver *routing.Resolver
	notifier Notifier
	diag     *diag.Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	dedup    Deduper
	limiter  Limiter

	events chan telephony.Event

	clock func() time.Time
	newID func() string

	// dials tracks in-flight async dial goroutines for shutdown.
	dials sync.WaitGroup
}

type Options struct {
	Diag    *diag.Service
	Metrics *metrics.Metrics
	Dedup   Deduper
	Limiter Limiter
}

func NewCoordinator(cfg Config, store calls.Store, gw telephony.Gateway, resolver *routing.Resolver, notifier Notifier, log *slog.Logger, opts Options) *Coordinator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		gateway:  gw,
		resolver: resolver,
		notifier: notifier,
		diag:     opts.Diag,
		log:      log,
		metrics:  opts.Metrics,
		dedup:    opts.Dedup,
		limiter:  opts.Limiter,
		events:   make(chan telephony.Event, cfg.EventQueueSize),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// OriginateRequest is the parsed, authenticated origination request handed
// over by the HTTP front door.
type OriginateRequest struct {
	To   string
	From string

	VoiceURL    string
	VoiceMethod string

	StatusCallbackURL    string
	StatusCallbackMethod string

	SID              string
	AccountSID       string
	AccountAuthToken string
	APIVersion       string

	RoutingHints routing.Hints
}

// Originate resolves routing, creates the call record in queued state and
// dispatches the dial asynchronously. It returns the created snapshot;
// dial rejection is reported later through the status callback, never
// synchronously.
func (co *Coordinator) Originate(ctx context.Context, req OriginateRequest) (calls.Snapshot, error) {
	instruction, err := co.resolver.Resolve(req.From, req.To, req.RoutingHints)
	if err != nil {
		return calls.Snapshot{}, err
	}

	if co.limiter != nil && req.AccountSID != "" {
		ok, err := co.limiter.Acquire(ctx, req.AccountSID)
		if err != nil {
			return calls.Snapshot{}, err
		}
		if !ok {
			return calls.Snapshot{}, ErrCapacityExhausted
		}
	}

	now := co.clock().UTC()
	c := calls.Call{
		ID:                   co.newID(),
		Source:               req.From,
		Destination:          req.To,
		DialInstruction:      instruction.DialString,
		Status:               calls.CallStatusQueued,
		StatusCallbackURL:    req.StatusCallbackURL,
		StatusCallbackMethod: req.StatusCallbackMethod,
		VoiceURL:             req.VoiceURL,
		VoiceMethod:          req.VoiceMethod,
		ExternalSID:          req.SID,
		AccountSID:           req.AccountSID,
		AccountAuthToken:     req.AccountAuthToken,
		APIVersion:           req.APIVersion,
		Direction:            calls.DirectionOutboundAPI,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := co.store.Create(ctx, c); err != nil {
		if co.limiter != nil && req.AccountSID != "" {
			co.limiter.Release(ctx, req.AccountSID)
		}
		return calls.Snapshot{}, err
	}

	co.log.Info("call created",
		"call_id", c.ID,
		"from", c.Source,
		"to", c.Destination,
		"trunk", instruction.TrunkName,
	)

	// The dial must not block the request path or the event loop, and it
	// must outlive the HTTP request context.
	dialCtx := context.WithoutCancel(ctx)
	co.dials.Add(1)
	go co.dial(dialCtx, c)

	return c.Snapshot(), nil
}

func (co *Coordinator) dial(ctx context.Context, c calls.Call) {
	defer co.dials.Done()

	dialCtx, cancel := context.WithTimeout(ctx, co.cfg.DialTimeout)
	defer cancel()

	res, err := co.gateway.Dial(dialCtx, telephony.DialRequest{CallID: c.ID, DialString: c.DialInstruction})
	switch {
	case err != nil:
		co.metrics.Dial("error")
		co.log.Error("dial failed", "call_id", c.ID, "err", err)
		co.failDial(ctx, c.ID, "dial error: "+err.Error())
	case !res.Accepted:
		co.metrics.Dial("rejected")
		co.log.Warn("dial rejected", "call_id", c.ID, "reason", res.Reason)
		co.failDial(ctx, c.ID, res.Reason)
	default:
		co.metrics.Dial("accepted")
	}
}

// failDial moves a rejected dial to failed and notifies the requester.
// The CAS may lose to a cancellation; that is a harmless no-op.
func (co *Coordinator) failDial(ctx context.Context, callID, reason string) {
	eventID := "dial-reject:" + callID
	updated, err := co.store.Transition(ctx, callID, calls.CallStatusQueued, calls.CallStatusFailed, eventID)
	if err != nil {
		if errors.Is(err, calls.ErrStaleTransition) {
			co.log.Debug("dial failure superseded", "call_id", callID)
			return
		}
		co.log.Error("dial failure transition error", "call_id", callID, "err", err)
		return
	}
	co.afterTransition(ctx, updated)
}

// Cancel moves a queued call to canceled. It races fairly with an
// incoming ringing event through the same CAS.
func (co *Coordinator) Cancel(ctx context.Context, id string) (calls.Snapshot, error) {
	c, err := co.store.Get(ctx, id)
	if err != nil {
		return calls.Snapshot{}, err
	}
	if c.Status != calls.CallStatusQueued {
		return calls.Snapshot{}, calls.ErrInvalidTransition
	}

	updated, err := co.store.Transition(ctx, id, calls.CallStatusQueued, calls.CallStatusCanceled, "cancel:"+co.newID())
	if err != nil {
		return calls.Snapshot{}, err
	}
	co.afterTransition(ctx, updated)
	return updated.Snapshot(), nil
}

// Get returns the call's public snapshot.
func (co *Coordinator) Get(ctx context.Context, id string) (calls.Snapshot, error) {
	c, err := co.store.Get(ctx, id)
	if err != nil {
		return calls.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Publish offers a switch event to the bounded queue. It reports false
// when the queue is full; the hook handler answers 503 and the switch
// retries (the feed is at-least-once).
func (co *Coordinator) Publish(ev telephony.Event) bool {
	select {
	case co.events <- ev:
		return true
	default:
		co.metrics.EventDropped("queue_full")
		co.log.Warn("event queue full, shedding", "call_id", ev.CallID, "event_id", ev.EventID)
		return false
	}
}

// Run consumes the event queue until ctx is canceled, then waits for
// in-flight dials.
func (co *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			co.dials.Wait()
			return
		case ev := <-co.events:
			co.handleEvent(ctx, ev)
		}
	}
}

func (co *Coordinator) handleEvent(ctx context.Context, ev telephony.Event) {
	if co.dedup != nil {
		seen, err := co.dedup.Seen(ctx, ev.CallID, ev.EventID)
		if err != nil {
			// Dedup cache trouble degrades to the store's CAS.
			co.log.Warn("event dedup check failed", "call_id", ev.CallID, "err", err)
		} else if seen {
			co.metrics.EventDropped("stale")
			co.log.Debug("event already seen", "call_id", ev.CallID, "event_id", ev.EventID)
			return
		}
	}

	c, err := co.store.Get(ctx, ev.CallID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			co.metrics.EventDropped("invalid")
			co.log.Warn("event for unknown call", "call_id", ev.CallID, "event_id", ev.EventID)
			co.flag(ctx, diag.Record{
				CallID:  ev.CallID,
				Kind:    diag.KindUnknownCall,
				EventID: ev.EventID,
				Detail:  "event " + string(ev.Type) + " for unknown call",
			})
			return
		}
		co.log.Error("call lookup failed", "call_id", ev.CallID, "err", err)
		return
	}

	target := targetStatus(ev.Type, c.Status)

	updated, err := co.store.Transition(ctx, ev.CallID, c.Status, target, ev.EventID)
	switch {
	case err == nil:
		co.metrics.Transition(string(updated.Status))
		co.markSeen(ctx, ev)
		co.afterTransition(ctx, updated)
	case errors.Is(err, calls.ErrStaleTransition):
		// Already applied or superseded by a concurrent writer.
		co.markSeen(ctx, ev)
		co.metrics.EventDropped("stale")
		co.log.Debug("stale event dropped",
			"call_id", ev.CallID,
			"event_id", ev.EventID,
			"event_type", ev.Type,
		)
	case errors.Is(err, calls.ErrInvalidTransition):
		co.metrics.EventDropped("invalid")
		co.log.Warn("invalid transition dropped",
			"call_id", ev.CallID,
			"event_id", ev.EventID,
			"event_type", ev.Type,
			"status", c.Status,
		)
		co.flag(ctx, diag.Record{
			CallID:  ev.CallID,
			Kind:    diag.KindInvalidTransition,
			EventID: ev.EventID,
			Detail:  "event " + string(ev.Type) + " while " + string(c.Status),
		})
	default:
		// Transient store trouble. The event id stays unmarked so the
		// switch's redelivery gets another shot at the CAS.
		co.log.Error("transition failed", "call_id", ev.CallID, "event_id", ev.EventID, "err", err)
	}
}

// markSeen records the event id in the dedup cache once it no longer
// matters whether the switch redelivers it. Invalid edges are not marked:
// the same event can become valid after the call moves on.
func (co *Coordinator) markSeen(ctx context.Context, ev telephony.Event) {
	if co.dedup == nil {
		return
	}
	if err := co.dedup.Mark(ctx, ev.CallID, ev.EventID); err != nil {
		co.log.Warn("event dedup mark failed", "call_id", ev.CallID, "event_id", ev.EventID, "err", err)
	}
}

// afterTransition fans out the side effects of a committed transition:
// the status callback and, for terminal states, the capacity release.
func (co *Coordinator) afterTransition(ctx context.Context, c calls.Call) {
	co.notifier.Enqueue(callback.Notification{
		URL:          c.StatusCallbackURL,
		Method:       c.StatusCallbackMethod,
		Call:         c.Snapshot(),
		TargetStatus: c.Status,
	})
	if c.Status.Terminal() && co.limiter != nil && c.AccountSID != "" {
		co.limiter.Release(ctx, c.AccountSID)
	}
}

func (co *Coordinator) flag(ctx context.Context, r diag.Record) {
	if err := co.diag.Append(ctx, r); err != nil {
		co.log.Warn("diagnostic append failed", "call_id", r.CallID, "err", err)
	}
}

// targetStatus maps an event type onto the status it drives toward given
// the call's current state. Illegal combinations deliberately map to an
// edge outside the table so the store reports ErrInvalidTransition.
func targetStatus(t telephony.EventType, current calls.CallStatus) calls.CallStatus {
	switch t {
	case telephony.EventRinging:
		return calls.CallStatusRinging
	case telephony.EventAnswered:
		return calls.CallStatusInProgress
	case telephony.EventBusy:
		return calls.CallStatusBusy
	case telephony.EventFailed:
		return calls.CallStatusFailed
	case telephony.EventHangup:
		if current == calls.CallStatusInProgress {
			return calls.CallStatusCompleted
		}
		// Hangup before answer is a no-answer; from any other state the
		// edge is invalid and gets flagged.
		return calls.CallStatusNoAnswer
	default:
		return calls.CallStatus(t)
	}
}
