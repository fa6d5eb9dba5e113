// Package normalize turns raw feed items into canonical notification messages.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"dynamic_bot/internal/model"
)

// Action labels.
const (
	ActionPost   = "posted a new update:"
	ActionUpload = "published a new upload:"
)

// Placeholder replaces the body of an item with no extractable text.
const Placeholder = "This update has no text content."

const quotedLabel = "original post"

// URL templates for deep links.
const (
	PageURLFormat    = "https://t.bilibili.com/%s"
	ProfileURLFormat = "https://space.bilibili.com/%d"
	VideoURLFormat   = "https://www.bilibili.com/video/%s"
)

// Normalizer converts RawItems into Messages. It is stateless and safe for concurrent use.
type Normalizer struct {
	loc *time.Location
}

// New creates a Normalizer that reports publish times in loc. A nil loc means time.Local.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// PageURL returns the "view post" link for an item.
func PageURL(itemID string) string {
	return fmt.Sprintf(PageURLFormat, itemID)
}

// ProfileURL returns the author profile link for a subject.
func ProfileURL(subjectID int64) string {
	return fmt.Sprintf(ProfileURLFormat, subjectID)
}

// Normalize builds the canonical message for item. The body is never empty.
func (n *Normalizer) Normalize(subjectID int64, item model.RawItem) model.Message {
	action, body, pics := extract(item)
	if strings.TrimSpace(body.Plain()) == "" {
		body = model.Text{{Kind: model.SegmentPlain, Text: Placeholder}}
	}

	authorID := item.AuthorID
	if authorID == 0 {
		authorID = subjectID
	}

	return model.Message{
		SubjectID:   subjectID,
		ItemID:      item.ID,
		AuthorName:  item.AuthorName,
		AuthorURL:   ProfileURL(authorID),
		Action:      action,
		Body:        body,
		Attachments: attachments(pics),
		PublishedAt: item.PublishedAt.In(n.loc),
		PageURL:     PageURL(item.ID),
	}
}

// extract applies the body rules. A description always wins over any major body;
// the major body of a repost is only reached through the quoted item.
func extract(item model.RawItem) (string, model.Text, []string) {
	switch b := item.Body.(type) {
	case model.DescriptionBody:
		text := plain(strings.Join(b.Runs, ""))
		var pics []string
		if b.Quoted != nil {
			quoted, qpics := extractQuoted(*b.Quoted)
			text = append(text, model.Segment{Kind: model.SegmentRule, Text: quotedLabel})
			if b.Quoted.AuthorName != "" {
				text = append(text,
					model.Segment{Kind: model.SegmentBold, Text: "@" + b.Quoted.AuthorName},
					model.Segment{Kind: model.SegmentPlain, Text: "\n"},
				)
			}
			if strings.TrimSpace(quoted.Plain()) == "" {
				quoted = plain(Placeholder)
			}
			text = append(text, quoted...)
			pics = qpics
		}
		return ActionPost, text, pics
	case model.OpusBody:
		return ActionPost, opusText(b), b.Pictures
	case model.ArchiveBody:
		return ActionUpload, archiveText(b), nonEmpty(b.Cover)
	case model.UnknownBody:
		return ActionPost, nil, nil
	default:
		return ActionPost, nil, nil
	}
}

// extractQuoted handles the body of a reposted item. Quoted items are not expanded further.
func extractQuoted(item model.RawItem) (model.Text, []string) {
	switch b := item.Body.(type) {
	case model.OpusBody:
		return opusText(b), b.Pictures
	case model.ArchiveBody:
		return archiveText(b), nonEmpty(b.Cover)
	case model.DescriptionBody:
		return plain(strings.Join(b.Runs, "")), nil
	default:
		return nil, nil
	}
}

func opusText(b model.OpusBody) model.Text {
	var text model.Text
	if title := strings.TrimSpace(b.Title); title != "" {
		text = append(text,
			model.Segment{Kind: model.SegmentBold, Text: title},
			model.Segment{Kind: model.SegmentPlain, Text: "\n"},
		)
	}
	return append(text, plain(strings.Join(b.Runs, ""))...)
}

// archiveText is the video title followed by the video link when the upload has one.
func archiveText(b model.ArchiveBody) model.Text {
	text := plain(b.Title)
	if b.BVID == "" {
		return text
	}
	if len(text) > 0 {
		text = append(text, model.Segment{Kind: model.SegmentPlain, Text: "\n"})
	}
	return append(text, model.Segment{Kind: model.SegmentPlain, Text: fmt.Sprintf(VideoURLFormat, b.BVID)})
}

func plain(s string) model.Text {
	if s == "" {
		return nil
	}
	return model.Text{{Kind: model.SegmentPlain, Text: s}}
}

func nonEmpty(url string) []string {
	if url == "" {
		return nil
	}
	return []string{url}
}

func attachments(urls []string) []model.Attachment {
	var out []model.Attachment
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, model.Attachment{URL: u, IsFirst: len(out) == 0})
	}
	return out
}
