package canvas

import (
	"sync"
	"time"

	"collabboard/pkg/types"
)

// DefaultEmitInterval is how long the emitter coalesces draw payloads
// before sending the latest one.
const DefaultEmitInterval = 50 * time.Millisecond

// DrawEmitter coalesces in-progress draw payloads so a fast pointer does
// not flood the wire. Offer replaces any pending payload; at most one send
// happens per interval, always carrying the most recent layer contents.
// Flush sends the pending payload immediately and must be called when a
// stroke commits so the final geometry is never lost to the timer.
type DrawEmitter struct {
	send     func(types.DrawActionPayload) error
	interval time.Duration

	mu      sync.Mutex
	pending *types.DrawActionPayload
	timer   *time.Timer
	closed  bool
}

// NewDrawEmitter creates an emitter that delivers coalesced payloads via
// send. A non-positive interval falls back to DefaultEmitInterval.
func NewDrawEmitter(send func(types.DrawActionPayload) error, interval time.Duration) *DrawEmitter {
	if interval <= 0 {
		interval = DefaultEmitInterval
	}
	return &DrawEmitter{
		send:     send,
		interval: interval,
	}
}

// Offer stages a payload for sending. If no send is scheduled, one fires
// after the emit interval; otherwise the staged payload is replaced and the
// existing schedule stands.
func (e *DrawEmitter) Offer(payload types.DrawActionPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.pending = &payload
	if e.timer == nil {
		e.timer = time.AfterFunc(e.interval, e.emit)
	}
}

// Flush sends any staged payload immediately, cancelling the scheduled
// send. Returns the send error, or nil when nothing was staged.
func (e *DrawEmitter) Flush() error {
	e.mu.Lock()
	payload := e.takePendingLocked()
	e.mu.Unlock()

	if payload == nil {
		return nil
	}
	return e.send(*payload)
}

// Close flushes any staged payload and stops the emitter. Further Offer
// calls are ignored.
func (e *DrawEmitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	payload := e.takePendingLocked()
	e.mu.Unlock()

	if payload == nil {
		return nil
	}
	return e.send(*payload)
}

// emit runs on the timer goroutine.
func (e *DrawEmitter) emit() {
	e.mu.Lock()
	payload := e.pending
	e.pending = nil
	e.timer = nil
	e.mu.Unlock()

	if payload == nil {
		return
	}
	// Send outside the lock so a slow socket never blocks Offer.
	_ = e.send(*payload)
}

func (e *DrawEmitter) takePendingLocked() *types.DrawActionPayload {
	payload := e.pending
	e.pending = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return payload
}
