// Package tracker holds the per-entity state of a session and merges decoded
// events into it.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

// Outcome is the result category of a merge.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeDropped  Outcome = "dropped"
	OutcomeRejected Outcome = "rejected"
)

// Reason explains a dropped or rejected merge.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnknownID       Reason = "unknown_id"
	ReasonAlreadyTerminal Reason = "already_terminal"
)

// MergeResult reports what a merge did.
type MergeResult struct {
	Outcome Outcome
	Reason  Reason

	// Previous is the status before the merge.
	Previous domain.Status

	// Entity is the state after the merge. Zero for dropped events.
	Entity domain.Entity
}

// Applied reports whether the merge changed the store.
func (r MergeResult) Applied() bool {
	return r.Outcome == OutcomeApplied
}

// Err converts a dropped or rejected result into its canonical error.
// It returns nil for applied merges.
func (r MergeResult) Err(evt *domain.Event) error {
	switch r.Outcome {
	case OutcomeDropped:
		return domain.ErrUnknown(evt.EntityID)
	case OutcomeRejected:
		return domain.ErrRejected(evt.EntityID, r.Previous, evt.Status)
	default:
		return nil
	}
}

// Store is a keyed collection of entity records. All methods are safe for
// concurrent use; merges are serialized and snapshots are consistent with
// respect to concurrent merges.
type Store struct {
	mu       sync.RWMutex
	entities map[domain.EntityID]*domain.Entity
	order    []domain.EntityID
	seq      uint64
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entities: make(map[domain.EntityID]*domain.Entity),
		now:      time.Now,
	}
}

// Track begins tracking ids. Ids not yet known are created as pending;
// known ids keep their state. It returns the number of entities created.
func (s *Store) Track(ids ...domain.EntityID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, id := range ids {
		if _, exists := s.entities[id]; exists {
			continue
		}
		s.seq++
		s.entities[id] = &domain.Entity{
			ID:             id,
			Status:         domain.StatusPending,
			LastUpdatedSeq: s.seq,
			UpdatedAt:      s.now(),
		}
		s.order = append(s.order, id)
		created++
	}
	return created
}

// Reset re-initializes the named entities to pending, clearing detail and
// error. If any id is unknown nothing is reset.
func (s *Store) Reset(ids ...domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, exists := s.entities[id]; !exists {
			return fmt.Errorf("reset: %w", domain.ErrUnknown(id))
		}
	}

	for _, id := range ids {
		ent := s.entities[id]
		s.seq++
		ent.Status = domain.StatusPending
		ent.Detail = nil
		ent.ErrorMessage = ""
		ent.LastUpdatedSeq = s.seq
		ent.UpdatedAt = s.now()
	}
	return nil
}

// Merge applies a decoded event to the entity it names.
//
// Unknown ids are dropped. Any event for an entity already in a terminal
// status is rejected; only Reset makes it eligible again.
func (s *Store) Merge(evt *domain.Event) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, exists := s.entities[evt.EntityID]
	if !exists {
		return MergeResult{Outcome: OutcomeDropped, Reason: ReasonUnknownID}
	}

	prev := ent.Status
	if prev.IsTerminal() {
		return MergeResult{
			Outcome:  OutcomeRejected,
			Reason:   ReasonAlreadyTerminal,
			Previous: prev,
			Entity:   ent.Clone(),
		}
	}

	s.seq++
	ent.Status = evt.Status
	ent.Detail = nil
	if evt.Detail != nil {
		ent.Detail = append(ent.Detail, evt.Detail...)
	}
	ent.ErrorMessage = ""
	if evt.Status == domain.StatusFailed {
		ent.ErrorMessage = evt.Error
	}
	ent.LastUpdatedSeq = s.seq
	ent.UpdatedAt = s.now()

	return MergeResult{
		Outcome:  OutcomeApplied,
		Previous: prev,
		Entity:   ent.Clone(),
	}
}

// FailPending marks every entity in ids that is still pending as failed with
// message. It returns the ids that changed.
func (s *Store) FailPending(ids []domain.EntityID, message string) []domain.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []domain.EntityID
	for _, id := range ids {
		ent, exists := s.entities[id]
		if !exists || ent.Status != domain.StatusPending {
			continue
		}
		s.seq++
		ent.Status = domain.StatusFailed
		ent.ErrorMessage = message
		ent.LastUpdatedSeq = s.seq
		ent.UpdatedAt = s.now()
		failed = append(failed, id)
	}
	return failed
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(id domain.EntityID) (domain.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, exists := s.entities[id]
	if !exists {
		return domain.Entity{}, false
	}
	return ent.Clone(), true
}

// Has reports whether id is tracked.
func (s *Store) Has(id domain.EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entities[id]
	return exists
}

// Len returns the number of tracked entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Snapshot returns an immutable copy of all tracked entities.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Entities: make([]domain.Entity, 0, len(s.order)),
		Seq:      s.seq,
	}
	for _, id := range s.order {
		snap.Entities = append(snap.Entities, s.entities[id].Clone())
	}
	return snap
}

// Discard drops every tracked entity, ending the session's state.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[domain.EntityID]*domain.Entity)
	s.order = nil
}
