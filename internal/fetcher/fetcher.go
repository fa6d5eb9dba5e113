// Package fetcher downloads a subject's latest feed page and decodes it into raw items.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dynamic_bot/internal/model"
)

// DefaultBaseURL is the space-feed endpoint of the Bilibili web API.
const DefaultBaseURL = "https://api.bilibili.com/x/polymer/web-dynamic/v1/feed/space"

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Major body types understood by the decoder.
const (
	MajorOpus    = "MAJOR_TYPE_OPUS"
	MajorArchive = "MAJOR_TYPE_ARCHIVE"
)

// ErrAPI is returned when the API answers with a non-zero code.
var ErrAPI = errors.New("api error")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher reads subjects' feeds from the Bilibili web API.
type Fetcher struct {
	client  HTTPClient
	baseURL string
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		baseURL: DefaultBaseURL,
	}
}

// FetchLatestPage returns the newest page of the subject's feed.
func (f *Fetcher) FetchLatestPage(ctx context.Context, subjectID int64) (*model.Page, error) {
	q := url.Values{}
	q.Set("host_mid", strconv.FormatInt(subjectID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", fmt.Sprintf("https://space.bilibili.com/%d/dynamic", subjectID))
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
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

	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", ErrAPI, r.Code, r.Message)
	}

	page := &model.Page{}
	for i := range r.Data.Items {
		page.Items = append(page.Items, decodeItem(&r.Data.Items[i], true))
	}
	return page, nil
}

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Items []apiItem `json:"items"`
	} `json:"data"`
}

type apiItem struct {
	IDStr   string `json:"id_str"`
	Type    string `json:"type"`
	Modules struct {
		Author struct {
			Mid       int64  `json:"mid"`
			Name      string `json:"name"`
			PubTS     int64  `json:"pub_ts"`
			PubAction string `json:"pub_action"`
		} `json:"module_author"`
		Dynamic struct {
			Desc  *apiRichText `json:"desc"`
			Major *apiMajor    `json:"major"`
		} `json:"module_dynamic"`
	} `json:"modules"`
	Orig *apiItem `json:"orig"`
}

type apiRichText struct {
	Text  string `json:"text"`
	Nodes []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"rich_text_nodes"`
}

type apiMajor struct {
	Type string `json:"type"`
	Opus *struct {
		Title   string       `json:"title"`
		Summary *apiRichText `json:"summary"`
		Pics    []struct {
			URL string `json:"url"`
		} `json:"pics"`
	} `json:"opus"`
	Archive *struct {
		Title string `json:"title"`
		Cover string `json:"cover"`
		BVID  string `json:"bvid"`
	} `json:"archive"`
}

// decodeItem maps an API item onto the body variants. Only top-level items may carry a quoted item.
func decodeItem(a *apiItem, allowQuote bool) model.RawItem {
	author := a.Modules.Author
	item := model.RawItem{
		ID:          a.IDStr,
		AuthorName:  author.Name,
		AuthorID:    author.Mid,
		Action:      author.PubAction,
		PublishedAt: time.Unix(author.PubTS, 0),
	}

	dyn := a.Modules.Dynamic
	var quoted *model.RawItem
	if allowQuote && a.Orig != nil {
		q := decodeItem(a.Orig, false)
		quoted = &q
	}

	switch {
	case dyn.Desc != nil && (dyn.Desc.Text != "" || len(dyn.Desc.Nodes) > 0):
		item.Body = model.DescriptionBody{Runs: dyn.Desc.runs(), Quoted: quoted}
	case quoted != nil:
		item.Body = model.DescriptionBody{Quoted: quoted}
	default:
		item.Body = decodeMajor(dyn.Major)
	}
	return item
}

func decodeMajor(m *apiMajor) model.Body {
	if m == nil {
		return model.UnknownBody{}
	}
	switch {
	case m.Type == MajorOpus && m.Opus != nil:
		b := model.OpusBody{Title: m.Opus.Title}
		if m.Opus.Summary != nil {
			b.Runs = m.Opus.Summary.runs()
		}
		for _, p := range m.Opus.Pics {
			b.Pictures = append(b.Pictures, p.URL)
		}
		return b
	case m.Type == MajorArchive && m.Archive != nil:
		return model.ArchiveBody{Title: m.Archive.Title, Cover: m.Archive.Cover, BVID: m.Archive.BVID}
	default:
		return model.UnknownBody{MajorType: m.Type}
	}
}

// runs returns the text of each rich-text node in order, or the flat text when there are no nodes.
func (r *apiRichText) runs() []string {
	if len(r.Nodes) == 0 {
		if r.Text == "" {
			return nil
		}
		return []string{r.Text}
	}
	out := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		out = append(out, n.Text)
	}
	return out
}
