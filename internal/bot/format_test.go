package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dynamic_bot/internal/model"
	"dynamic_bot/internal/tracker"
)

func TestFormatNotification(t *testing.T) {
	msg := model.Message{
		AuthorName: "alice_1",
		AuthorURL:  "https://space.bilibili.com/42",
		Action:     "posted a new update:",
		Body: model.Text{
			{Kind: model.SegmentBold, Text: "Title!"},
			{Kind: model.SegmentPlain, Text: "\n"},
			{Kind: model.SegmentPlain, Text: "1+1=2 (really)."},
		},
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	want := `[alice\_1](https://space.bilibili.com/42) posted a new update:` +
		"\n――――――――――\n" +
		`*Title\!*` + "\n" + `1\+1\=2 \(really\)\.` +
		"\n――――――――――\n" +
		`2024\-05\-01 12:00:00 UTC`

	if diff := cmp.Diff(want, FormatNotification(msg)); diff != "" {
		t.Errorf("FormatNotification mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatNotificationQuotedRule(t *testing.T) {
	msg := model.Message{
		AuthorName: "alice",
		Body: model.Text{
			{Kind: model.SegmentPlain, Text: "fwd"},
			{Kind: model.SegmentRule, Text: "original post"},
			{Kind: model.SegmentBold, Text: "@bob"},
		},
	}
	got := FormatNotification(msg)
	if !strings.Contains(got, "fwd\n―――― original post ――――\n*@bob*") {
		t.Errorf("quoted block not rendered as expected: %q", got)
	}
}

func TestEscapeURL(t *testing.T) {
	if diff := cmp.Diff(`https://x.example.com/a\(b\)\\c`, escapeURL(`https://x.example.com/a(b)\c`)); diff != "" {
		t.Errorf("escapeURL mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncate(t *testing.T) {
	text := model.Text{
		{Kind: model.SegmentBold, Text: "abc"},
		{Kind: model.SegmentPlain, Text: "défgh"},
	}

	got := truncate(text, 5)
	want := model.Text{
		{Kind: model.SegmentBold, Text: "abc"},
		{Kind: model.SegmentPlain, Text: "dé"},
		{Kind: model.SegmentPlain, Text: "…"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("truncate mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(text, truncate(text, 100)); diff != "" {
		t.Errorf("short text should be unchanged (-want +got):\n%s", diff)
	}
}

func TestFormatStatus(t *testing.T) {
	got := FormatStatus(
		[]int64{1, 2, 3},
		[]tracker.State{{SubjectID: 1, LastSeenItemID: "X"}, {SubjectID: 2}},
		map[model.DeliveryStatus]int{model.DeliverySent: 4, model.DeliveryRolledBack: 1},
	)
	want := "Subjects:\n" +
		"\n1  last: X\n" +
		"\n2  nothing seen\n" +
		"\n3  not polled yet\n" +
		"\nDeliveries: rolled_back=1 sent=4\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatStatus mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatHistory(t *testing.T) {
	if diff := cmp.Diff("No deliveries recorded yet.", FormatHistory(nil)); diff != "" {
		t.Errorf("empty history mismatch (-want +got):\n%s", diff)
	}

	got := FormatHistory([]model.Delivery{{
		SubjectID: 42, ItemID: "A1", Status: model.DeliveryFailed, Error: "timeout",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}})
	want := "Recent deliveries:\n\n2024-05-01 12:00 UTC  42  A1  [failed]\n   timeout"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatHistory mismatch (-want +got):\n%s", diff)
	}
}
