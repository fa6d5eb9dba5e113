package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dynamic_bot/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastReq    *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetchLatestPage(t *testing.T) {
	feed := loadFixture(t, "../../testdata/space_feed.json")

	tests := []struct {
		name       string
		transport  *mockTransport
		wantItems  int
		wantErr    bool
		wantAPIErr bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: feed, statusCode: 200},
			wantItems: 5,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "busy", statusCode: 412},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid json",
			transport: &mockTransport{body: "<html>", statusCode: 200},
			wantErr:   true,
		},
		{
			name:       "api rejects request",
			transport:  &mockTransport{body: `{"code":-352,"message":"风控校验失败"}`, statusCode: 200},
			wantErr:    true,
			wantAPIErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			page, err := f.FetchLatestPage(context.Background(), 42)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantAPIErr && !errors.Is(err, ErrAPI) {
					t.Errorf("expected ErrAPI, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantItems, len(page.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}

			q := tt.transport.lastReq.URL.Query()
			if diff := cmp.Diff("42", q.Get("host_mid")); diff != "" {
				t.Errorf("host_mid mismatch (-want +got):\n%s", diff)
			}
			if !strings.Contains(tt.transport.lastReq.Header.Get("Referer"), "space.bilibili.com/42") {
				t.Errorf("unexpected referer %q", tt.transport.lastReq.Header.Get("Referer"))
			}
		})
	}
}

func TestFetchLatestPageDecodesVariants(t *testing.T) {
	f := New(&mockTransport{body: loadFixture(t, "../../testdata/space_feed.json"), statusCode: 200})
	page, err := f.FetchLatestPage(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.RawItem{
		{
			ID: "915800000000000001", AuthorName: "alice", AuthorID: 42,
			PublishedAt: time.Unix(1714536000, 0),
			Body:        model.DescriptionBody{Runs: []string{"Hello ", "[doge]"}},
		},
		{
			ID: "915800000000000002", AuthorName: "alice", AuthorID: 42,
			PublishedAt: time.Unix(1714535000, 0),
			Body: model.OpusBody{
				Title:    "Weekend",
				Runs:     []string{"Photos from the trip"},
				Pictures: []string{"http://i0.hdslb.com/bfs/new_dyn/1.jpg", "http://i0.hdslb.com/bfs/new_dyn/2.jpg"},
			},
		},
		{
			ID: "915800000000000003", AuthorName: "alice", AuthorID: 42, Action: "投稿了视频",
			PublishedAt: time.Unix(1714534000, 0),
			Body:        model.ArchiveBody{Title: "My video", Cover: "http://i2.hdslb.com/bfs/archive/cover.jpg", BVID: "BV1xx411c7mD"},
		},
		{
			ID: "915800000000000004", AuthorName: "alice", AuthorID: 42,
			PublishedAt: time.Unix(1714533000, 0),
			Body: model.DescriptionBody{
				Runs: []string{"look at this"},
				Quoted: &model.RawItem{
					ID: "915700000000000009", AuthorName: "bob", AuthorID: 7,
					PublishedAt: time.Unix(1714500000, 0),
					Body: model.OpusBody{
						Title:    "T",
						Runs:     []string{"B"},
						Pictures: []string{"http://i0.hdslb.com/bfs/q.jpg"},
					},
				},
			},
		},
		{
			ID: "915800000000000005", AuthorName: "alice", AuthorID: 42, Action: "直播了",
			PublishedAt: time.Unix(1714532000, 0),
			Body:        model.UnknownBody{MajorType: "MAJOR_TYPE_LIVE_RCMD"},
		},
	}

	if diff := cmp.Diff(want, page.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMajorEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		major *apiMajor
		want  model.Body
	}{
		{name: "absent major", major: nil, want: model.UnknownBody{}},
		{name: "opus type without payload", major: &apiMajor{Type: MajorOpus}, want: model.UnknownBody{MajorType: MajorOpus}},
		{name: "archive type without payload", major: &apiMajor{Type: MajorArchive}, want: model.UnknownBody{MajorType: MajorArchive}},
		{name: "unknown type", major: &apiMajor{Type: "MAJOR_TYPE_COMMON"}, want: model.UnknownBody{MajorType: "MAJOR_TYPE_COMMON"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, decodeMajor(tt.major)); diff != "" {
				t.Errorf("decodeMajor mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRichTextRuns(t *testing.T) {
	flat := &apiRichText{Text: "flat only"}
	if diff := cmp.Diff([]string{"flat only"}, flat.runs()); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
	empty := &apiRichText{}
	if got := empty.runs(); got != nil {
		t.Errorf("empty runs = %v, want nil", got)
	}
}
