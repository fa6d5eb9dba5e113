package bot

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dynamic_bot/internal/model"
	"dynamic_bot/internal/tracker"
)

// timeLayout is how publish times appear in notifications.
const timeLayout = "2006-01-02 15:04:05 MST"

// maxBodyRunes keeps a rendered notification below Telegram's 4096 character limit
// after escaping and the header and footer are added.
const maxBodyRunes = 3000

// FormatNotification renders msg as MarkdownV2: the linked author name with the action,
// the body, and the local publish time, separated by delimiter lines.
func FormatNotification(msg model.Message) string {
	var b strings.Builder

	name := msg.AuthorName
	if name == "" {
		name = "unknown"
	}
	fmt.Fprintf(&b, "[%s](%s) %s",
		escape(name), escapeURL(msg.AuthorURL), escape(msg.Action))
	b.WriteString(escape(model.RuleLine("")))
	writeText(&b, truncate(msg.Body, maxBodyRunes))
	b.WriteString(escape(model.RuleLine("")))
	b.WriteString(escape(msg.PublishedAt.Format(timeLayout)))
	return b.String()
}

func writeText(b *strings.Builder, t model.Text) {
	for _, s := range t {
		switch s.Kind {
		case model.SegmentBold:
			b.WriteString("*" + escape(s.Text) + "*")
		case model.SegmentRule:
			b.WriteString(escape(model.RuleLine(s.Text)))
		default:
			b.WriteString(escape(s.Text))
		}
	}
}

// truncate cuts t after limit runes of segment text, marking the cut with an ellipsis.
func truncate(t model.Text, limit int) model.Text {
	out := make(model.Text, 0, len(t))
	left := limit
	for _, s := range t {
		n := utf8.RuneCountInString(s.Text)
		if n <= left {
			out = append(out, s)
			left -= n
			continue
		}
		r := []rune(s.Text)
		s.Text = string(r[:left])
		out = append(out, s, model.Segment{Kind: model.SegmentPlain, Text: "…"})
		return out
	}
	return out
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// escapeURL escapes the characters MarkdownV2 reserves inside a link target.
func escapeURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(s)
}

// FormatStatus formats the tracked subjects and journal counters for /status.
func FormatStatus(subjects []int64, states []tracker.State, counts map[model.DeliveryStatus]int) string {
	seen := make(map[int64]string, len(states))
	tracked := make(map[int64]bool, len(states))
	for _, st := range states {
		seen[st.SubjectID] = st.LastSeenItemID
		tracked[st.SubjectID] = true
	}

	var b strings.Builder
	b.WriteString("Subjects:\n")
	for _, id := range subjects {
		switch {
		case !tracked[id]:
			fmt.Fprintf(&b, "\n%d  not polled yet\n", id)
		case seen[id] == "":
			fmt.Fprintf(&b, "\n%d  nothing seen\n", id)
		default:
			fmt.Fprintf(&b, "\n%d  last: %s\n", id, seen[id])
		}
	}

	if len(counts) > 0 {
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		b.WriteString("\nDeliveries:")
		for _, s := range statuses {
			fmt.Fprintf(&b, " %s=%d", s, counts[model.DeliveryStatus(s)])
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatHistory formats journal entries for /history.
func FormatHistory(deliveries []model.Delivery) string {
	if len(deliveries) == 0 {
		return "No deliveries recorded yet."
	}
	var b strings.Builder
	b.WriteString("Recent deliveries:\n")
	for _, d := range deliveries {
		fmt.Fprintf(&b, "\n%s  %d  %s  [%s]", d.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"), d.SubjectID, d.ItemID, d.Status)
		if d.Error != "" {
			fmt.Fprintf(&b, "\n   %s", d.Error)
		}
	}
	return b.String()
}
