package progress

import (
	"testing"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
)

func snapshot(statuses ...domain.Status) domain.Snapshot {
	var snap domain.Snapshot
	for i, s := range statuses {
		snap.Entities = append(snap.Entities, domain.Entity{
			ID:     domain.EntityID(string(rune('A' + i))),
			Status: s,
		})
	}
	return snap
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		snap domain.Snapshot
		want Summary
	}{
		{
			name: "empty",
			snap: domain.Snapshot{},
			want: Summary{},
		},
		{
			name: "all pending",
			snap: snapshot(domain.StatusPending, domain.StatusPending),
			want: Summary{Pending: 2, Total: 2},
		},
		{
			name: "mixed",
			snap: snapshot(domain.StatusSucceeded, domain.StatusFailed, domain.StatusPending, domain.StatusPending),
			want: Summary{Pending: 2, Succeeded: 1, Failed: 1, Total: 4, PercentComplete: 50},
		},
		{
			name: "complete",
			snap: snapshot(domain.StatusSucceeded, domain.StatusFailed),
			want: Summary{Succeeded: 1, Failed: 1, Total: 2, PercentComplete: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.snap)
			if got != tt.want {
				t.Errorf("Summarize() = %+v, want %+v", got, tt.want)
			}
			if got.Pending+got.Succeeded+got.Failed != got.Total {
				t.Errorf("partition %d+%d+%d != total %d", got.Pending, got.Succeeded, got.Failed, got.Total)
			}
		})
	}
}

func TestSummarize_Repeatable(t *testing.T) {
	snap := snapshot(domain.StatusSucceeded, domain.StatusPending, domain.StatusPending)
	first := Summarize(snap)
	for i := 0; i < 3; i++ {
		if got := Summarize(snap); got != first {
			t.Fatalf("Summarize() call %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestSummary_Done(t *testing.T) {
	if (Summary{}).Done() {
		t.Error("empty summary should not be done")
	}
	if !Summarize(snapshot(domain.StatusFailed)).Done() {
		t.Error("all terminal summary should be done")
	}
}

func TestScoped(t *testing.T) {
	snap := snapshot(domain.StatusSucceeded, domain.StatusFailed, domain.StatusPending)

	got := Scoped(snap, []domain.EntityID{"B", "C", "missing"})
	want := Summary{Pending: 1, Failed: 1, Total: 2, PercentComplete: 50}
	if got != want {
		t.Errorf("Scoped() = %+v, want %+v", got, want)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{0, 0, 0},
		{1, 0, 0},
		{1, 4, 25},
		{4, 4, 100},
		{5, 4, 100},
		{-1, 4, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.done, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tt.done, tt.total, got, tt.want)
		}
	}
}
