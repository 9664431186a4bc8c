package otpgate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// auditDispatcher finalizes and delivers gate audit events off the
// request path. Finalization happens here, once, for every event:
// the event identity is stamped, the timestamp is taken from the
// gate's clock, and the source-address redaction policy is applied.
// Delivery runs on a single background goroutine so a slow sink never
// stalls a verification.
type auditDispatcher struct {
	cfg  AuditConfig
	sink AuditSink
	now  func() time.Time

	ch        chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, now func() time.Time) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		now:  now,
		ch:   make(chan AuditEvent, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// criticalAuditAction reports whether an event is operator evidence
// that must not be shed under load: a freshly tripped lockout, a
// verifier fault, or an invalid configuration.
func criticalAuditAction(action string) bool {
	switch action {
	case auditEventLockoutTriggered, auditEventVerifierFault, auditEventConfigInvalid:
		return true
	}
	return false
}

// Emit finalizes event and queues it for delivery. Under DropIfFull an
// ordinary event is shed when the buffer is full; critical events fall
// back to a blocking enqueue so lockout and fault evidence survives
// bursts that overwhelm the buffer.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	event.EventID = uuid.NewString()
	event.Timestamp = d.now().UTC()
	if !d.cfg.IncludeIP {
		event.SourceAddr = ""
	}

	if d.cfg.DropIfFull && !criticalAuditAction(event.Action) {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops the dispatcher after draining queued events. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were shed because the buffer was
// full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
