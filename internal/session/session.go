// Package session is the caller boundary of the loader. A Session owns one
// entity store and one stream controller, remembers the items it has
// uploaded so a subset can be retried, and republishes controller
// notifications to any number of subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/journal"
	"github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
	"github.com/sujalmh/vector-loader-automation/internal/tracker"
	"github.com/sujalmh/vector-loader-automation/internal/upstream"
)

// Item describes one file to upload.
type Item = upstream.Item

// ErrInvalid marks requests rejected before any pass is started.
var ErrInvalid = errors.New("invalid request")

// Uploader opens the event stream for a pass over items.
type Uploader interface {
	Open(ctx context.Context, kind upstream.Kind, items []upstream.Item) (stream.ByteSource, error)
}

// Session coordinates passes for one set of items.
type Session struct {
	logger   *slog.Logger
	uploader Uploader
	journal  journal.Journal
	store    *tracker.Store
	hub      *Hub
	ctrl     *stream.Controller

	mu      sync.Mutex
	catalog map[domain.EntityID]Item
	kind    upstream.Kind
}

// New creates a session. An uploader is required; the journal defaults to
// an in-memory one.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		logger:  slog.Default(),
		store:   tracker.New(),
		catalog: make(map[domain.EntityID]Item),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			if s.journal != nil {
				s.journal.Close()
			}
			return nil, err
		}
	}
	if s.uploader == nil {
		if s.journal != nil {
			s.journal.Close()
		}
		return nil, fmt.Errorf("uploader required")
	}
	if s.journal == nil {
		if err := WithMemoryJournal()(s); err != nil {
			return nil, err
		}
	}

	s.hub = NewHub(s.logger)
	s.ctrl = stream.New(s.store, stream.OpenerFunc(s.open),
		stream.WithLogger(s.logger),
		stream.WithJournal(s.journal),
		stream.OnUpdate(func(u stream.Update) { s.hub.Publish(updateNotification(u)) }),
		stream.OnTerminal(func(t stream.Terminal) { s.hub.Publish(terminalNotification(t)) }),
	)
	return s, nil
}

// Start uploads items as a kind pass and begins tracking them. The pass is
// not bound to ctx's cancellation; use Cancel to stop it.
func (s *Session) Start(ctx context.Context, kind upstream.Kind, items []Item) (string, error) {
	kind, err := upstream.ParseKind(string(kind))
	if err != nil {
		return "", fmt.Errorf("start: %w: %v", ErrInvalid, err)
	}
	ids, err := validate(items)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.Status().State == stream.StateStreaming {
		return "", domain.ErrAlreadyStreaming
	}
	for _, item := range items {
		s.catalog[item.ID] = item
	}
	s.kind = kind

	return s.ctrl.Start(context.WithoutCancel(ctx), ids)
}

// Retry re-uploads the named items, which must have been started before.
// An empty kind reuses the kind of the previous pass.
func (s *Session) Retry(ctx context.Context, kind upstream.Kind, ids []domain.EntityID) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("retry: %w: no ids given", ErrInvalid)
	}
	if kind != "" {
		k, err := upstream.ParseKind(string(kind))
		if err != nil {
			return "", fmt.Errorf("retry: %w: %v", ErrInvalid, err)
		}
		kind = k
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.Status().State == stream.StateStreaming {
		return "", domain.ErrAlreadyStreaming
	}
	for _, id := range ids {
		if _, ok := s.catalog[id]; !ok {
			return "", fmt.Errorf("retry: %w", domain.ErrUnknown(id))
		}
	}
	if kind != "" {
		s.kind = kind
	}

	return s.ctrl.Retry(context.WithoutCancel(ctx), ids)
}

// Cancel stops the pass in flight.
func (s *Session) Cancel() error {
	return s.ctrl.Cancel()
}

// Wait blocks until the current pass ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (stream.Terminal, error) {
	return s.ctrl.Wait(ctx)
}

// Current returns the state of the latest pass.
func (s *Session) Current() stream.Status {
	return s.ctrl.Status()
}

// Kind returns the kind of the latest pass.
func (s *Session) Kind() upstream.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Snapshot returns a consistent copy of every tracked entity.
func (s *Session) Snapshot() domain.Snapshot {
	return s.store.Snapshot()
}

// Summary returns the counts over every tracked entity.
func (s *Session) Summary() progress.Summary {
	return progress.Summarize(s.store.Snapshot())
}

// Entity returns one tracked entity.
func (s *Session) Entity(id domain.EntityID) (domain.Entity, error) {
	e, ok := s.store.Get(id)
	if !ok {
		return domain.Entity{}, domain.ErrUnknown(id)
	}
	return e, nil
}

// Item returns the catalog entry for id.
func (s *Session) Item(id domain.EntityID) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.catalog[id]
	return item, ok
}

// Journal lists the diagnostics recorded for a pass.
func (s *Session) Journal(ctx context.Context, passID string) ([]*journal.Entry, error) {
	return s.journal.List(ctx, passID)
}

// Subscribe registers for update and terminal notifications.
func (s *Session) Subscribe(buffer int) (<-chan Notification, func()) {
	return s.hub.Subscribe(buffer)
}

// Hub returns the notification hub.
func (s *Session) Hub() *Hub {
	return s.hub
}

// Discard forgets every tracked entity and catalog item. It fails while a
// pass is streaming.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl.Status().State == stream.StateStreaming {
		return domain.ErrAlreadyStreaming
	}
	s.store.Discard()
	s.catalog = make(map[domain.EntityID]Item)
	return nil
}

// Close cancels any pass in flight, waits for it to end, and closes the
// journal.
func (s *Session) Close(ctx context.Context) error {
	if err := s.ctrl.Cancel(); err != nil && !errors.Is(err, domain.ErrNotStreaming) {
		return err
	}
	if _, err := s.ctrl.Wait(ctx); err != nil {
		return err
	}
	return s.journal.Close()
}

func (s *Session) open(ctx context.Context, ids []domain.EntityID) (stream.ByteSource, error) {
	s.mu.Lock()
	kind := s.kind
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		item, ok := s.catalog[id]
		if !ok {
			s.mu.Unlock()
			return nil, domain.ErrUnknown(id)
		}
		items = append(items, item)
	}
	s.mu.Unlock()

	s.logger.Info("uploading items",
		slog.String("kind", string(kind)),
		slog.Int("items", len(items)))
	return s.uploader.Open(ctx, kind, items)
}

func validate(items []Item) ([]domain.EntityID, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("start: %w: no items given", ErrInvalid)
	}
	ids := make([]domain.EntityID, 0, len(items))
	seen := make(map[domain.EntityID]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("start: %w: item %d has no id", ErrInvalid, i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("start: %w: duplicate item id %s", ErrInvalid, item.ID)
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}
	return ids, nil
}
