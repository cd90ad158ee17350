package acquire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTwitterFetch(t *testing.T) {
	var gotAuth, gotQuery, gotFields, gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		gotFields = r.URL.Query().Get("tweet.fields")
		gotMax = r.URL.Query().Get("max_results")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","text":"goal","author_id":"a","created_at":"2025-08-26T10:00:00.000Z","public_metrics":{"like_count":3,"reply_count":1,"retweet_count":2}}],"meta":{"result_count":1}}`))
	}))
	defer srv.Close()

	tw := NewTwitter(TwitterConfig{BaseURL: srv.URL, BearerToken: "Bearer abc", Query: "#derby", MaxResults: 5}, nil)
	records, err := tw.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "#derby" || gotFields != "author_id,created_at,public_metrics" || gotMax != "10" {
		t.Fatalf("unexpected params query=%q fields=%q max=%q", gotQuery, gotFields, gotMax)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	metrics := records[0].(map[string]any)["public_metrics"].(map[string]any)
	if n, ok := metrics["like_count"].(json.Number); !ok || n.String() != "3" {
		t.Fatalf("expected json.Number like_count, got %T %v", metrics["like_count"], metrics["like_count"])
	}
}

func TestTwitterFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tw := NewTwitter(TwitterConfig{BaseURL: srv.URL, BearerToken: "x"}, nil)
	_, err := tw.Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTwitterRequiresToken(t *testing.T) {
	if _, err := NewTwitter(TwitterConfig{BaseURL: "http://127.0.0.1:0"}, nil).Fetch(context.Background()); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestTwitterTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-token\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	}))
	defer srv.Close()

	tw := NewTwitter(TwitterConfig{BaseURL: srv.URL, BearerToken: "ignored", TokenFile: path}, nil)
	records, err := tw.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAuth != "Bearer file-token" || len(records) != 0 {
		t.Fatalf("unexpected auth %q records %v", gotAuth, records)
	}
}

func TestYouTubeFetchFlattens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" || r.URL.Query().Get("type") != "video" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"v1"}},{"id":{"videoId":"v2"}}]}`))
	})
	var gotIDs string
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("id")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"v1","snippet":{"title":"Top goals","channelId":"c1","publishedAt":"2025-08-25T18:00:00Z"},"statistics":{"likeCount":"120","commentCount":"7"}},
			{"id":"v2","snippet":{"title":"Saves"},"statistics":{"commentCount":"oops"}}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	yt := NewYouTube(YouTubeConfig{BaseURL: srv.URL + "/", APIKey: "k"}, NewLimiter(100))
	records, err := yt.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotIDs != "v1,v2" {
		t.Fatalf("unexpected ids %q", gotIDs)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0].(map[string]any)
	if first["post_id"] != "v1" || first["author_id"] != "c1" || first["likes"] != json.Number("120") || first["shares"] != json.Number("0") {
		t.Fatalf("unexpected flattened record: %v", first)
	}
	second := records[1].(map[string]any)
	if second["author_id"] != nil || second["likes"] != json.Number("0") || second["comments"] != json.Number("0") {
		t.Fatalf("unexpected defaults: %v", second)
	}
}

func TestYouTubeEmptySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/videos") {
			t.Errorf("videos endpoint should not be called")
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	records, err := NewYouTube(YouTubeConfig{BaseURL: srv.URL, APIKey: "k"}, nil).Fetch(context.Background())
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", records, err)
	}
}

func TestNormalizeBearer(t *testing.T) {
	cases := map[string]string{
		"abc":           "abc",
		"  Bearer abc ": "abc",
		"bearer xyz":    "xyz",
		"   ":           "",
	}
	for in, want := range cases {
		if got := NormalizeBearer(in); got != want {
			t.Fatalf("NormalizeBearer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileTokenLoaderCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewFileTokenLoader(path)
	if tok, changed, err := l.Load(); err != nil || tok != "one" || !changed {
		t.Fatalf("first load = %q %v %v", tok, changed, err)
	}
	if _, changed, _ := l.Load(); changed {
		t.Fatalf("expected unchanged on second load")
	}
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := l.Load(); err != ErrEmptyToken {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}
