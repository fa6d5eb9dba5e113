package filter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dynamic_bot/internal/model"
)

func TestGatesCheck(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gates := Gates{StaleAfter: 600 * time.Second}

	tests := []struct {
		name string
		item model.RawItem
		want Verdict
	}{
		{
			name: "fresh post passes",
			item: model.RawItem{PublishedAt: now.Add(-30 * time.Second), Action: "投稿了视频"},
			want: Pass,
		},
		{
			name: "one second before threshold passes",
			item: model.RawItem{PublishedAt: now.Add(-599 * time.Second)},
			want: Pass,
		},
		{
			name: "exactly at threshold is stale",
			item: model.RawItem{PublishedAt: now.Add(-600 * time.Second)},
			want: Stale,
		},
		{
			name: "older than threshold is stale",
			item: model.RawItem{PublishedAt: now.Add(-time.Hour)},
			want: Stale,
		},
		{
			name: "future timestamp passes",
			item: model.RawItem{PublishedAt: now.Add(time.Minute)},
			want: Pass,
		},
		{
			name: "live pseudo-event is dropped",
			item: model.RawItem{PublishedAt: now.Add(-10 * time.Second), Action: LiveAction},
			want: LivePseudoEvent,
		},
		{
			name: "old live pseudo-event is still reported as live",
			item: model.RawItem{PublishedAt: now.Add(-time.Hour), Action: LiveAction},
			want: LivePseudoEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gates.Check(tt.item, now)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGatesCustomLiveAction(t *testing.T) {
	now := time.Now()
	gates := Gates{StaleAfter: time.Minute, LiveAction: "went live"}

	if got := gates.Check(model.RawItem{PublishedAt: now, Action: "went live"}, now); got != LivePseudoEvent {
		t.Errorf("Check() = %s, want live", got)
	}
	if got := gates.Check(model.RawItem{PublishedAt: now, Action: LiveAction}, now); got != Pass {
		t.Errorf("Check() = %s, want pass", got)
	}
}
