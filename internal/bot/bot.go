package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dynamic_bot/internal/config"
	"dynamic_bot/internal/model"
	"dynamic_bot/internal/storage"
	"dynamic_bot/internal/tracker"
)

// maxMediaGroup is Telegram's limit of items per media group.
const maxMediaGroup = 10

// ViewPostLabel is the text of the inline button attached to every notification.
const ViewPostLabel = "View post"

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// StateSource exposes the novelty state for status reports.
type StateSource interface {
	Snapshot() []tracker.State
}

// Bot delivers notifications to Telegram and answers operator commands.
type Bot struct {
	api     telegramAPI
	cfg     *config.Config
	states  StateSource
	journal storage.Journal
	log     *slog.Logger
}

// New creates a Bot that talks to the Bot API through client.
// client's timeout bounds every send and is what produces retryable timeout errors.
func New(token string, client *http.Client, cfg *config.Config, states StateSource, journal storage.Journal, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		cfg:     cfg,
		states:  states,
		journal: journal,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop for operator commands, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendAttachmentGroup sends attachments as media groups of at most ten items.
// caption, if not empty, is MarkdownV2 and is attached to the first item.
// A trailing group of one item is sent as a single photo.
func (b *Bot) SendAttachmentGroup(ctx context.Context, chat string, attachments []model.Attachment, caption string) error {
	chatID, channel, err := ParseChat(chat)
	if err != nil {
		return err
	}

	for start := 0; start < len(attachments); start += maxMediaGroup {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+maxMediaGroup, len(attachments))
		chunk := attachments[start:end]

		if len(chunk) == 1 {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(chunk[0].URL))
			photo.ChannelUsername = channel
			if chunk[0].IsFirst && caption != "" {
				photo.Caption = caption
				photo.ParseMode = tgbotapi.ModeMarkdownV2
			}
			if _, err := b.api.Send(photo); err != nil {
				return fmt.Errorf("send photo: %w", err)
			}
			continue
		}

		media := make([]interface{}, 0, len(chunk))
		for _, a := range chunk {
			p := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(a.URL))
			if a.IsFirst && caption != "" {
				p.Caption = caption
				p.ParseMode = tgbotapi.ModeMarkdownV2
			}
			media = append(media, p)
		}
		group := tgbotapi.NewMediaGroup(chatID, media)
		group.ChannelUsername = channel
		if _, err := b.api.SendMediaGroup(group); err != nil {
			return fmt.Errorf("send media group: %w", err)
		}
	}
	return nil
}

// SendText sends a MarkdownV2 message with a single "View post" button linking to actionURL.
func (b *Bot) SendText(ctx context.Context, chat, text, actionURL string, suppressPreview bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, channel, err := ParseChat(chat)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ChannelUsername = channel
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = suppressPreview
	if actionURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(ViewPostLabel, actionURL)),
		)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// ParseChat interprets a destination as a numeric chat ID or an @channel username.
func ParseChat(chat string) (int64, string, error) {
	chat = strings.TrimSpace(chat)
	if strings.HasPrefix(chat, "@") && len(chat) > 1 {
		return 0, chat, nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid chat %q: want a numeric ID or @channel", chat)
	}
	return id, "", nil
}

// reply sends a plain text message to the given chat.
func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "help":
		b.handleHelp(chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
