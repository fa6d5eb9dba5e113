package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"dynamic_bot/internal/model"
)

// RSS reads subjects' feeds through an RSS bridge such as RSSHub.
type RSS struct {
	client      HTTPClient
	urlTemplate string
}

// NewRSS creates an RSS source. urlTemplate must contain a %d verb for the subject ID.
func NewRSS(client HTTPClient, urlTemplate string) *RSS {
	return &RSS{
		client:      client,
		urlTemplate: urlTemplate,
	}
}

// FetchLatestPage returns the bridge feed of the subject as a single page.
func (r *RSS) FetchLatestPage(ctx context.Context, subjectID int64) (*model.Page, error) {
	feed, err := r.Fetch(ctx, fmt.Sprintf(r.urlTemplate, subjectID))
	if err != nil {
		return nil, err
	}

	page := &model.Page{}
	for _, it := range feed.Items {
		page.Items = append(page.Items, rssItem(feed, it, subjectID))
	}
	return page, nil
}

// Fetch downloads and parses an RSS feed from the given URL.
func (r *RSS) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "DynamicNotifyBot/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ItemID prefers the numeric post ID embedded in a t.bilibili.com link so that
// "view post" links built from it resolve.
func ItemID(item *gofeed.Item) string {
	for _, link := range []string{item.Link, item.GUID} {
		if !strings.Contains(link, "t.bilibili.com/") {
			continue
		}
		if id := path.Base(strings.TrimRight(strings.SplitN(link, "?", 2)[0], "/")); id != "" && id != "." {
			return id
		}
	}
	return ItemGUID(item)
}

func rssItem(feed *gofeed.Feed, it *gofeed.Item, subjectID int64) model.RawItem {
	runs, pics := parseHTML(it.Description)
	if len(runs) == 0 && strings.TrimSpace(it.Title) != "" {
		runs = []string{strings.TrimSpace(it.Title)}
	}

	item := model.RawItem{
		ID:         ItemID(it),
		AuthorName: rssAuthor(feed, it),
		AuthorID:   subjectID,
		Body:       model.OpusBody{Runs: runs, Pictures: pics},
	}
	switch {
	case it.PublishedParsed != nil:
		item.PublishedAt = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		item.PublishedAt = *it.UpdatedParsed
	}
	return item
}

func rssAuthor(feed *gofeed.Feed, it *gofeed.Item) string {
	if len(it.Authors) > 0 && it.Authors[0].Name != "" {
		return it.Authors[0].Name
	}
	if len(feed.Authors) > 0 && feed.Authors[0].Name != "" {
		return feed.Authors[0].Name
	}
	return strings.TrimSpace(strings.TrimSuffix(feed.Title, " 的 bilibili 动态"))
}

// parseHTML extracts the visible text and image sources of an item description.
// Line breaks are kept; unparsable markup yields no runs.
func parseHTML(s string) ([]string, []string) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil, nil
	}

	var pics []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		pics = append(pics, src)
	})
	doc.Find("br").ReplaceWithHtml("\n")

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil, pics
	}
	return []string{text}, pics
}

