// Package notifier delivers normalized messages to the chat channel and tracks
// the outcome of each delivery.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"dynamic_bot/internal/model"
)

// DefaultBackoff is the wait before the single retry of a timed-out delivery.
const DefaultBackoff = 5 * time.Second

// Client is the chat-delivery boundary.
type Client interface {
	SendAttachmentGroup(ctx context.Context, chat string, attachments []model.Attachment, caption string) error
	SendText(ctx context.Context, chat, text, actionURL string, suppressPreview bool) error
}

// Formatter renders a message into the text the client sends.
type Formatter func(model.Message) string

// Notifier sends one message, as an optional media group followed by a text message.
type Notifier struct {
	client  Client
	chat    string
	format  Formatter
	backoff time.Duration
	log     *slog.Logger
}

// New creates a Notifier sending to chat. A zero backoff means DefaultBackoff.
func New(client Client, chat string, format Formatter, backoff time.Duration, log *slog.Logger) *Notifier {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Notifier{
		client:  client,
		chat:    chat,
		format:  format,
		backoff: backoff,
		log:     log,
	}
}

// Deliver sends attachments as one media group, then the formatted text with a link to pageURL.
// The whole sequence is retried once after the backoff when a step times out.
// Any other error is returned without retrying.
func (n *Notifier) Deliver(ctx context.Context, msg model.Message, pageURL string, attachments []model.Attachment) error {
	text := n.format(msg)

	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = n.send(ctx, text, pageURL, attachments)
			return lastErr
		},
		retry.Attempts(2),
		retry.Delay(n.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.RetryIf(IsTimeout),
		retry.OnRetry(func(attempt uint, err error) {
			n.log.Warn("delivery timed out, retrying",
				"subject_id", msg.SubjectID, "item_id", msg.ItemID,
				"attempt", attempt+1, "backoff", n.backoff, "error", err)
		}),
	)
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func (n *Notifier) send(ctx context.Context, text, pageURL string, attachments []model.Attachment) error {
	if len(attachments) > 0 {
		if err := n.client.SendAttachmentGroup(ctx, n.chat, attachments, ""); err != nil {
			return err
		}
	}
	return n.client.SendText(ctx, n.chat, text, pageURL, true)
}

// IsTimeout reports whether err is a transport-level timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
