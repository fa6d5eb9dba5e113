// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// Page is one page of a subject's feed as returned by a feed source.
type Page struct {
	Items []RawItem
}

// RawItem is a single upstream feed entry.
type RawItem struct {
	ID          string
	PublishedAt time.Time
	AuthorName  string
	AuthorID    int64
	// Action is the platform's publish-action label, e.g. "投稿了视频" or "直播了".
	Action string
	Body   Body
}

// BodyKind identifies the variant held by a Body.
type BodyKind int

// Supported body kinds.
const (
	BodyUnknown BodyKind = iota
	BodyDescription
	BodyOpus
	BodyArchive
)

// Body is the polymorphic content of a RawItem. The set of implementations is closed.
type Body interface {
	Kind() BodyKind
}

// DescriptionBody is a post carrying a rich-text description, optionally reposting another item.
type DescriptionBody struct {
	Runs   []string
	Quoted *RawItem
}

// OpusBody is a long-form post: optional title, summary text and pictures.
type OpusBody struct {
	Title    string
	Runs     []string
	Pictures []string
}

// ArchiveBody is a video upload.
type ArchiveBody struct {
	Title string
	Cover string
	BVID  string
}

// UnknownBody is any body shape the pipeline does not recognize, including an absent one.
type UnknownBody struct {
	MajorType string
}

// Kind implements Body.
func (DescriptionBody) Kind() BodyKind { return BodyDescription }

// Kind implements Body.
func (OpusBody) Kind() BodyKind { return BodyOpus }

// Kind implements Body.
func (ArchiveBody) Kind() BodyKind { return BodyArchive }

// Kind implements Body.
func (UnknownBody) Kind() BodyKind { return BodyUnknown }

// Attachment references a remote image to deliver alongside a message.
type Attachment struct {
	URL     string
	IsFirst bool
}

// SegmentKind selects how a Segment is rendered.
type SegmentKind int

// Supported segment kinds.
const (
	SegmentPlain SegmentKind = iota
	SegmentBold
	// SegmentRule is a visual delimiter line; its Text is an optional label.
	SegmentRule
)

// Segment is one run of transport-agnostic text.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Text is an ordered list of segments.
type Text []Segment

// Plain returns the text without any markup.
func (t Text) Plain() string {
	var b strings.Builder
	for _, s := range t {
		if s.Kind == SegmentRule {
			b.WriteString(RuleLine(s.Text))
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// RuleLine renders a delimiter line, with an optional centered label.
func RuleLine(label string) string {
	if label == "" {
		return "\n――――――――――\n"
	}
	return "\n―――― " + label + " ――――\n"
}

// Message is the canonical notification produced from one RawItem.
type Message struct {
	SubjectID   int64
	ItemID      string
	AuthorName  string
	AuthorURL   string
	Action      string
	Body        Text
	Attachments []Attachment
	PublishedAt time.Time
	PageURL     string
}

// DeliveryStatus is the final state of a dispatched notification.
type DeliveryStatus string

// Supported delivery statuses.
const (
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryRolledBack DeliveryStatus = "rolled_back"
)

// Delivery is a journal entry describing one dispatched notification.
type Delivery struct {
	ID        int64
	SubjectID int64
	ItemID    string
	Status    DeliveryStatus
	Error     string
	CreatedAt time.Time
}
