package tracker

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

func event(id domain.EntityID, status domain.Status, errMsg string) *domain.Event {
	return &domain.Event{EntityID: id, Status: status, Error: errMsg}
}

func TestStore_Track(t *testing.T) {
	store := New()

	if n := store.Track("A", "B"); n != 2 {
		t.Fatalf("Track() created = %d, want 2", n)
	}
	if n := store.Track("B", "C"); n != 1 {
		t.Fatalf("Track() created = %d, want 1", n)
	}

	snap := store.Snapshot()
	if len(snap.Entities) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(snap.Entities))
	}
	for i, want := range []domain.EntityID{"A", "B", "C"} {
		if snap.Entities[i].ID != want {
			t.Errorf("Entities[%d].ID = %q, want %q", i, snap.Entities[i].ID, want)
		}
		if snap.Entities[i].Status != domain.StatusPending {
			t.Errorf("Entities[%d].Status = %q, want pending", i, snap.Entities[i].Status)
		}
	}
}

func TestStore_MergeApplied(t *testing.T) {
	store := New()
	store.Track("A")

	res := store.Merge(&domain.Event{
		EntityID: "A",
		Status:   domain.StatusSucceeded,
		Detail:   []byte(`{"chunksCreated":3}`),
	})
	if !res.Applied() {
		t.Fatalf("Merge() outcome = %q, want applied", res.Outcome)
	}
	if res.Previous != domain.StatusPending {
		t.Errorf("Previous = %q, want pending", res.Previous)
	}
	if err := res.Err(nil); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	got, ok := store.Get("A")
	if !ok {
		t.Fatal("Get() ok = false")
	}
	if got.Status != domain.StatusSucceeded || string(got.Detail) != `{"chunksCreated":3}` {
		t.Errorf("entity = %+v", got)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty for succeeded", got.ErrorMessage)
	}
}

func TestStore_MergeUnknownID(t *testing.T) {
	store := New()
	store.Track("A")
	before := store.Snapshot()

	evt := event("Z", domain.StatusSucceeded, "")
	res := store.Merge(evt)
	if res.Outcome != OutcomeDropped || res.Reason != ReasonUnknownID {
		t.Fatalf("Merge() = %+v, want dropped/unknown_id", res)
	}
	if !errors.Is(res.Err(evt), domain.ErrUnknownEntity) {
		t.Errorf("Err() = %v, want ErrUnknownEntity", res.Err(evt))
	}
	if store.Len() != 1 || store.Has("Z") {
		t.Error("unknown event created an entity")
	}
	if after := store.Snapshot(); after.Seq != before.Seq {
		t.Errorf("Seq changed from %d to %d on dropped event", before.Seq, after.Seq)
	}
}

func TestStore_IdempotentTerminalMerge(t *testing.T) {
	store := New()
	store.Track("A")
	evt := event("A", domain.StatusFailed, "timeout")

	first := store.Merge(evt)
	once, _ := store.Get("A")

	second := store.Merge(evt)
	twice, _ := store.Get("A")

	if !first.Applied() {
		t.Fatalf("first Merge() = %q, want applied", first.Outcome)
	}
	if second.Outcome != OutcomeRejected || second.Reason != ReasonAlreadyTerminal {
		t.Fatalf("second Merge() = %+v, want rejected/already_terminal", second)
	}
	if once.Status != twice.Status || once.ErrorMessage != twice.ErrorMessage || once.LastUpdatedSeq != twice.LastUpdatedSeq {
		t.Errorf("state changed by duplicate merge: %+v -> %+v", once, twice)
	}
	if domain.KindOf(second.Err(evt)) != domain.ErrorKindRejectedTransition {
		t.Errorf("Err() kind = %q, want rejected_transition", domain.KindOf(second.Err(evt)))
	}
}

func TestStore_RejectsDifferentTerminal(t *testing.T) {
	store := New()
	store.Track("A")
	store.Merge(event("A", domain.StatusSucceeded, ""))

	for _, status := range []domain.Status{domain.StatusFailed, domain.StatusPending} {
		res := store.Merge(event("A", status, "late"))
		if res.Outcome != OutcomeRejected {
			t.Errorf("Merge(%s) outcome = %q, want rejected", status, res.Outcome)
		}
	}
	if got, _ := store.Get("A"); got.Status != domain.StatusSucceeded {
		t.Errorf("Status = %q, want succeeded", got.Status)
	}
}

func TestStore_ResetThenRetry(t *testing.T) {
	store := New()
	store.Track("A")
	store.Merge(&domain.Event{EntityID: "A", Status: domain.StatusFailed, Error: "boom", Detail: []byte(`{}`)})

	if err := store.Reset("A"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	reset, _ := store.Get("A")
	if reset.Status != domain.StatusPending || reset.ErrorMessage != "" || reset.Detail != nil {
		t.Fatalf("after Reset entity = %+v, want clean pending", reset)
	}

	res := store.Merge(event("A", domain.StatusSucceeded, ""))
	if !res.Applied() {
		t.Fatalf("Merge() after reset = %q, want applied", res.Outcome)
	}
	if got, _ := store.Get("A"); got.Status != domain.StatusSucceeded {
		t.Errorf("Status = %q, want succeeded", got.Status)
	}
}

func TestStore_ResetUnknownIsAtomic(t *testing.T) {
	store := New()
	store.Track("A")
	store.Merge(event("A", domain.StatusFailed, "boom"))

	err := store.Reset("A", "missing")
	if !errors.Is(err, domain.ErrUnknownEntity) {
		t.Fatalf("Reset() error = %v, want ErrUnknownEntity", err)
	}
	if got, _ := store.Get("A"); got.Status != domain.StatusFailed {
		t.Errorf("Status = %q, want failed (reset must not partially apply)", got.Status)
	}
}

func TestStore_FailPending(t *testing.T) {
	store := New()
	store.Track("A", "B", "C")
	store.Merge(event("A", domain.StatusSucceeded, ""))

	failed := store.FailPending([]domain.EntityID{"A", "B", "missing"}, domain.ConnectionErrorMessage)
	if len(failed) != 1 || failed[0] != "B" {
		t.Fatalf("FailPending() = %v, want [B]", failed)
	}

	b, _ := store.Get("B")
	if b.Status != domain.StatusFailed || b.ErrorMessage != domain.ConnectionErrorMessage {
		t.Errorf("B = %+v", b)
	}
	if c, _ := store.Get("C"); c.Status != domain.StatusPending {
		t.Errorf("C outside scope changed to %q", c.Status)
	}
}

func TestStore_SeqMonotonic(t *testing.T) {
	store := New()
	store.Track("A", "B")

	var last uint64
	for _, evt := range []*domain.Event{
		event("A", domain.StatusPending, ""),
		event("A", domain.StatusSucceeded, ""),
		event("B", domain.StatusFailed, "x"),
	} {
		res := store.Merge(evt)
		if res.Entity.LastUpdatedSeq <= last {
			t.Fatalf("LastUpdatedSeq = %d, want > %d", res.Entity.LastUpdatedSeq, last)
		}
		last = res.Entity.LastUpdatedSeq
	}
}

func TestStore_SnapshotIsImmutable(t *testing.T) {
	store := New()
	store.Track("A")
	store.Merge(&domain.Event{EntityID: "A", Status: domain.StatusSucceeded, Detail: []byte(`{"a":1}`)})

	snap := store.Snapshot()
	snap.Entities[0].Status = domain.StatusFailed
	snap.Entities[0].Detail[2] = 'z'

	got, _ := store.Get("A")
	if got.Status != domain.StatusSucceeded || string(got.Detail) != `{"a":1}` {
		t.Errorf("store mutated through snapshot: %+v", got)
	}
}

func TestStore_ConcurrentMergesPartition(t *testing.T) {
	store := New()
	ids := make([]domain.EntityID, 50)
	for i := range ids {
		ids[i] = domain.EntityID(fmt.Sprintf("doc-%02d", i))
	}
	store.Track(ids...)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				id := ids[rng.Intn(len(ids))]
				status := []domain.Status{domain.StatusPending, domain.StatusSucceeded, domain.StatusFailed}[rng.Intn(3)]
				store.Merge(event(id, status, "x"))
				_ = store.Snapshot()
			}
		}(int64(w))
	}
	wg.Wait()

	snap := store.Snapshot()
	counts := map[domain.Status]int{}
	for _, e := range snap.Entities {
		counts[e.Status]++
	}
	if total := counts[domain.StatusPending] + counts[domain.StatusSucceeded] + counts[domain.StatusFailed]; total != len(ids) {
		t.Errorf("partition total = %d, want %d", total, len(ids))
	}
}

func TestStore_Discard(t *testing.T) {
	store := New()
	store.Track("A")
	store.Discard()

	if store.Len() != 0 || store.Has("A") {
		t.Error("Discard() left entities behind")
	}
}
