// Package progress derives summary counts from an entity snapshot.
package progress

import "github.com/sujalmh/vector-loader-automation/internal/core/domain"

// Summary is the aggregate view of a snapshot.
type Summary struct {
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`

	// PercentComplete is the share of entities in a terminal status, in [0,100].
	PercentComplete float64 `json:"percent_complete"`
}

// Done reports whether every tracked entity has reached a terminal status.
func (s Summary) Done() bool {
	return s.Total > 0 && s.Pending == 0
}

// Summarize partitions the snapshot by status. It is a pure function of its
// input and safe to call concurrently.
func Summarize(snap domain.Snapshot) Summary {
	var sum Summary
	for _, e := range snap.Entities {
		switch e.Status {
		case domain.StatusSucceeded:
			sum.Succeeded++
		case domain.StatusFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	sum.Total = len(snap.Entities)
	sum.PercentComplete = Percent(sum.Succeeded+sum.Failed, sum.Total)
	return sum
}

// Scoped summarizes only the entities named in ids, for progress of a single
// pass. Ids absent from the snapshot are ignored.
func Scoped(snap domain.Snapshot, ids []domain.EntityID) Summary {
	want := make(map[domain.EntityID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	scoped := domain.Snapshot{Seq: snap.Seq}
	for _, e := range snap.Entities {
		if _, ok := want[e.ID]; ok {
			scoped.Entities = append(scoped.Entities, e)
		}
	}
	return Summarize(scoped)
}

// Percent returns done/total*100 clamped to [0,100]. A zero total yields 0.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
