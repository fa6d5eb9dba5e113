package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const historyLimit = 10

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Update notifier commands:
/status - subjects and the last item seen for each
/history [subject_id] - recent deliveries
/help - this message`)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	counts, err := b.journal.CountDeliveries(ctx)
	if err != nil {
		b.log.Error("count deliveries", "error", err)
		counts = nil
	}
	b.reply(chatID, FormatStatus(b.cfg.Subjects, b.states.Snapshot(), counts))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	var subjectID int64
	if s := strings.TrimSpace(args); s != "" {
		id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid subject ID %q.", s))
			return
		}
		subjectID = id
	}

	deliveries, err := b.journal.ListDeliveries(ctx, subjectID, historyLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to read history: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(deliveries))
}
