// Package stream drives a single in-flight model response per chat tab:
// the idle/submitted/streaming/ready/error status machine, the one growing
// assistant message, and client-side cancellation.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chatsync-backend/internal/models"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// ErrBusy rejects a new submission while a response is in flight.
var ErrBusy = errors.New("a response is already in flight")

// Controller tracks one response at a time. Every delta appends to the same
// assistant message, identified by a single id generated at submission.
type Controller struct {
	mu          sync.Mutex
	status      Status
	chatID      uuid.UUID
	assistantID uuid.UUID
	buf         strings.Builder
	stopped     bool
	// inFlight stays true from Begin until Finish. Stop flips the visible
	// status back to idle while the turn keeps draining, so status alone
	// cannot gate new submissions.
	inFlight bool
	cancel   context.CancelFunc
	err      error
}

func NewController() *Controller {
	return &Controller{status: StatusIdle}
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) ChatID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

func (c *Controller) AssistantID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assistantID
}

// Begin transitions to submitted and allocates the assistant message id for
// the whole response. The returned context governs client-visible delivery
// only; Stop cancels it without touching the generation itself.
func (c *Controller) Begin(parent context.Context, chatID uuid.UUID) (context.Context, uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return nil, uuid.Nil, ErrBusy
	}

	c.inFlight = true
	c.status = StatusSubmitted
	c.chatID = chatID
	c.assistantID = models.NewMessageID()
	c.buf.Reset()
	c.stopped = false
	c.err = nil

	deliverCtx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return deliverCtx, c.assistantID, nil
}

// AppendDelta accumulates one increment of the assistant message. The first
// delta moves submitted to streaming. Returns false when the client-visible
// stream has been stopped and the chunk should not be delivered.
func (c *Controller) AppendDelta(chunk string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.WriteString(chunk)
	if c.status == StatusSubmitted {
		c.status = StatusStreaming
	}
	return !c.stopped
}

// Partial returns everything received so far for the current response.
func (c *Controller) Partial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Stop aborts the client-visible stream. The finish path still runs with
// whatever partial content was received, so nothing is silently discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusSubmitted, StatusStreaming:
		c.stopped = true
		c.status = StatusIdle
		if c.cancel != nil {
			c.cancel()
		}
	}
}

func (c *Controller) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// InFlight reports whether a turn currently owns the controller, including
// the drain window after Stop when the status already reads idle.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Finish records the stream outcome and returns the status reconciliation
// should act on. A transport error after Stop is not an error: the partial
// content is treated as the completed response.
func (c *Controller) Finish(err error) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false

	if c.stopped {
		// client-visible status stays idle; caller reconciles the partial
		return StatusReady
	}
	if err != nil {
		c.status = StatusError
		c.err = err
		return StatusError
	}
	c.status = StatusReady
	return StatusReady
}

func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Reset returns to idle once the outcome has been consumed. Input is
// accepted again afterwards.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusIdle
	c.stopped = false
	c.inFlight = false
	c.err = nil
	c.buf.Reset()
}
