// Package stream drives the read, extract, decode and merge loop for one
// progress stream at a time.
//
// A Controller moves through Idle -> Streaming -> {Completed, Failed,
// Cancelled}. Each Start begins a fresh pass over a set of entity ids. The
// pass runs on its own goroutine; reading the next chunk is the only point
// where it blocks, and cancellation takes effect there. All frames from one
// chunk are decoded and merged before the next read.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sujalmh/vector-loader-automation/internal/codec"
	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/journal"
	"github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/sse"
	"github.com/sujalmh/vector-loader-automation/internal/tracker"
)

const tracerName = "github.com/sujalmh/vector-loader-automation/internal/stream"

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateCancelled; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether the state ends a pass.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Update is delivered after every applied merge.
type Update struct {
	PassID   string
	Event    *domain.Event
	Entity   domain.Entity
	Snapshot domain.Snapshot
	Summary  progress.Summary

	// UpstreamProgress is the percentage reported by the upstream, if any.
	// Summary.PercentComplete is authoritative.
	UpstreamProgress *float64
}

// Terminal is delivered once when a pass ends.
type Terminal struct {
	PassID   string
	State    State
	Err      error
	Snapshot domain.Snapshot
	Summary  progress.Summary
}

// ErrorMessage returns the terminal error text, or "".
func (t Terminal) ErrorMessage() string {
	if t.Err == nil {
		return ""
	}
	return t.Err.Error()
}

// Status describes the controller's current pass.
type Status struct {
	PassID  string
	State   State
	Tracked []domain.EntityID
	Err     error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithJournal records pass diagnostics to j.
func WithJournal(j journal.Journal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithTracer overrides the tracer used for pass spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// OnUpdate registers the callback invoked after every applied merge. It runs
// on the pass goroutine.
func OnUpdate(fn func(Update)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

// OnTerminal registers the callback invoked once when a pass ends. It runs
// on the pass goroutine.
func OnTerminal(fn func(Terminal)) Option {
	return func(c *Controller) {
		c.onTerminal = fn
	}
}

// Controller orchestrates passes against one entity store.
type Controller struct {
	store      *tracker.Store
	opener     Opener
	logger     *slog.Logger
	journal    journal.Journal
	tracer     trace.Tracer
	onUpdate   func(Update)
	onTerminal func(Terminal)

	mu        sync.Mutex
	state     State
	passID    string
	tracked   []domain.EntityID
	src       ByteSource
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
	last      Terminal
}

// New creates a controller that merges into store and opens streams with opener.
func New(store *tracker.Store, opener Opener, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		opener: opener,
		logger: slog.Default(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Start begins a pass over ids. Ids not yet tracked are created as pending
// and tracked ids are reset to pending. ctx bounds the whole pass; when it
// ends the pass is cancelled. It returns the new pass id.
func (c *Controller) Start(ctx context.Context, ids []domain.EntityID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStreaming {
		return "", domain.ErrAlreadyStreaming
	}

	ids = dedupe(ids)
	c.store.Track(ids...)
	if err := c.store.Reset(ids...); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	passCtx, cancel := context.WithCancel(ctx)
	c.state = StateStreaming
	c.passID = uuid.New().String()
	c.tracked = ids
	c.src = nil
	c.cancel = cancel
	c.cancelled = false
	c.done = make(chan struct{})
	c.last = Terminal{}

	journal.Log(passCtx, c.journal, &journal.Entry{
		PassID:  c.passID,
		Kind:    journal.KindPassStarted,
		Message: fmt.Sprintf("tracking %d entities", len(ids)),
	})
	c.logger.Info("stream pass started",
		slog.String("pass_id", c.passID),
		slog.Int("tracked", len(ids)))

	go c.run(passCtx, c.passID, ids, c.done)

	return c.passID, nil
}

// Retry resets ids and starts a new pass scoped to them. Every id must
// already be tracked.
func (c *Controller) Retry(ctx context.Context, ids []domain.EntityID) (string, error) {
	for _, id := range ids {
		if !c.store.Has(id) {
			return "", fmt.Errorf("retry: %w", domain.ErrUnknown(id))
		}
	}
	return c.Start(ctx, ids)
}

// Cancel stops the pass in flight. It releases the connection and returns
// without waiting; the pass ends at its next suspension point. Entities
// keep the status they had.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStreaming {
		return domain.ErrNotStreaming
	}
	if c.cancelled {
		return nil
	}

	c.cancelled = true
	c.cancel()
	if c.src != nil {
		if err := c.src.Close(); err != nil {
			c.logger.Debug("close on cancel", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Wait blocks until the current pass ends or ctx is done, and returns the
// terminal report. It returns immediately when no pass has been started.
func (c *Controller) Wait(ctx context.Context) (Terminal, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return Terminal{State: StateIdle}, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Terminal{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

// Status returns the current pass state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		PassID:  c.passID,
		State:   c.state,
		Tracked: append([]domain.EntityID(nil), c.tracked...),
		Err:     c.last.Err,
	}
}

// Store returns the entity store the controller merges into.
func (c *Controller) Store() *tracker.Store {
	return c.store
}

func (c *Controller) run(ctx context.Context, passID string, ids []domain.EntityID, done chan struct{}) {
	defer close(done)

	ctx, span := c.tracer.Start(ctx, "stream.pass", trace.WithAttributes(
		attribute.String("pass.id", passID),
		attribute.Int("pass.tracked", len(ids)),
	))
	defer span.End()

	p := &pass{
		Controller: c,
		id:         passID,
		ids:        ids,
		scope:      make(map[domain.EntityID]struct{}, len(ids)),
		span:       span,
		logger:     c.logger.With(slog.String("pass_id", passID)),
	}
	for _, id := range ids {
		p.scope[id] = struct{}{}
	}

	raw, err := c.opener.Open(ctx, ids)
	if err != nil {
		p.end(ctx, err)
		return
	}
	src := &onceSource{ByteSource: raw}
	defer src.Close()

	c.mu.Lock()
	c.src = src
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		p.end(ctx, context.Canceled)
		return
	}

	x := sse.NewExtractor()
	for {
		if err := ctx.Err(); err != nil {
			p.end(ctx, err)
			return
		}

		chunk, err := src.Next(ctx)
		if len(chunk) > 0 {
			for _, frame := range x.Push(chunk) {
				p.handleFrame(ctx, frame)
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if rest := x.Finish(); rest != nil {
				p.logger.Debug("discarding incomplete trailing frame",
					slog.String("kind", string(domain.ErrorKindFrameIncomplete)),
					slog.Int("bytes", len(rest)))
			}
			p.end(ctx, nil)
			return
		}
		p.end(ctx, err)
		return
	}
}

// pass holds the state local to one run of the loop.
type pass struct {
	*Controller
	id     string
	ids    []domain.EntityID
	scope  map[domain.EntityID]struct{}
	span   trace.Span
	logger *slog.Logger
}

func (p *pass) handleFrame(ctx context.Context, frame []byte) {
	evt, err := codec.Decode(frame)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyFrame) {
			p.logger.Debug("skipping frame without data")
			return
		}
		p.logger.Warn("skipping undecodable frame", slog.String("error", err.Error()))
		p.span.AddEvent("frame.decode_error")
		journal.Log(ctx, p.journal, &journal.Entry{
			PassID:  p.id,
			Kind:    journal.KindDecodeError,
			Message: err.Error(),
			Frame:   string(frame),
		})
		return
	}

	var res tracker.MergeResult
	if _, ok := p.scope[evt.EntityID]; ok {
		res = p.store.Merge(evt)
	} else {
		res = tracker.MergeResult{Outcome: tracker.OutcomeDropped, Reason: tracker.ReasonUnknownID}
	}

	if !res.Applied() {
		err := res.Err(evt)
		p.logger.Warn("event not merged",
			slog.String("entity_id", string(evt.EntityID)),
			slog.String("outcome", string(res.Outcome)),
			slog.String("reason", string(res.Reason)))
		journal.Log(ctx, p.journal, &journal.Entry{
			PassID:   p.id,
			Kind:     journal.KindFor(domain.KindOf(err)),
			EntityID: evt.EntityID,
			Status:   evt.Status,
			Message:  err.Error(),
		})
		return
	}

	journal.Log(ctx, p.journal, &journal.Entry{
		PassID:   p.id,
		Kind:     journal.KindApplied,
		EntityID: evt.EntityID,
		Status:   res.Entity.Status,
		Message:  res.Entity.ErrorMessage,
		Seq:      res.Entity.LastUpdatedSeq,
	})

	if p.onUpdate == nil {
		return
	}
	snap := p.store.Snapshot()
	p.onUpdate(Update{
		PassID:           p.id,
		Event:            evt,
		Entity:           res.Entity,
		Snapshot:         snap,
		Summary:          progress.Summarize(snap),
		UpstreamProgress: evt.Progress,
	})
}

// end settles the pass. A nil err completes it; an error after Cancel or
// after ctx ended cancels it; any other error fails it.
func (p *pass) end(ctx context.Context, err error) {
	p.mu.Lock()
	cancelled := p.cancelled
	p.mu.Unlock()

	state := StateCompleted
	switch {
	case err == nil:
	case cancelled || ctx.Err() != nil:
		state = StateCancelled
		err = nil
	default:
		state = StateFailed
		err = domain.ErrTransport(err)
	}

	if state == StateFailed {
		failed := p.store.FailPending(p.ids, domain.ConnectionErrorMessage)
		p.logger.Error("stream pass failed",
			slog.String("error", err.Error()),
			slog.Int("failed_pending", len(failed)))
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
		journal.Log(context.WithoutCancel(ctx), p.journal, &journal.Entry{
			PassID:  p.id,
			Kind:    journal.KindTransportError,
			Message: err.Error(),
		})
	}

	snap := p.store.Snapshot()
	term := Terminal{
		PassID:   p.id,
		State:    state,
		Err:      err,
		Snapshot: snap,
		Summary:  progress.Summarize(snap),
	}

	p.mu.Lock()
	p.state = state
	p.last = term
	p.src = nil
	p.cancel()
	p.mu.Unlock()

	p.span.SetAttributes(attribute.String("pass.state", state.String()))
	p.span.AddEvent("pass.terminal")
	journal.Log(context.WithoutCancel(ctx), p.journal, &journal.Entry{
		PassID:  p.id,
		Kind:    journal.KindTerminal,
		Message: state.String(),
	})
	p.logger.Info("stream pass ended",
		slog.String("state", state.String()),
		slog.Int("succeeded", term.Summary.Succeeded),
		slog.Int("failed", term.Summary.Failed),
		slog.Int("pending", term.Summary.Pending))

	if p.onTerminal != nil {
		p.onTerminal(term)
	}
}

func dedupe(ids []domain.EntityID) []domain.EntityID {
	seen := make(map[domain.EntityID]struct{}, len(ids))
	out := make([]domain.EntityID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
