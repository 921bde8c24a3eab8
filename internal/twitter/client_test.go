package twitter

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

const sampleResponse = `{
  "status": "success",
  "data": {
    "tweets": [
      {"id": "1002", "text": "BTC breaking out", "createdAt": "Thu May 15 22:00:22 +0000 2025",
       "retweetCount": 3, "likeCount": 10, "author": {"userName": "alice", "name": "Alice"}},
      {"id": "1001", "text": "gm", "createdAt": "Thu May 15 21:00:00 +0000 2025",
       "retweetCount": 0, "likeCount": 1, "author": {"username": "alice", "displayname": "Alice"}}
    ]
  }
}`

func TestClient_LastTweets_Success(t *testing.T) {
	var gotPath, gotKey, gotUser, gotLimit, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotUser = r.URL.Query().Get("userName")
		gotLimit = r.URL.Query().Get("limit")
		gotSince = r.URL.Query().Get("since_id")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(srv.Client(), "secret", srv.URL, 0, newTestLogger(&buf))

	posts, err := c.LastTweets(context.Background(), "alice", "999", 20)
	if err != nil {
		t.Fatalf("LastTweets がエラーを返した: %v", err)
	}

	if gotPath != "/twitter/user/last_tweets" {
		t.Errorf("path = %q, want %q", gotPath, "/twitter/user/last_tweets")
	}
	if gotKey != "secret" {
		t.Errorf("X-API-Key = %q, want %q", gotKey, "secret")
	}
	if gotUser != "alice" || gotLimit != "20" || gotSince != "999" {
		t.Errorf("query = (%q, %q, %q), want (alice, 20, 999)", gotUser, gotLimit, gotSince)
	}

	if len(posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(posts))
	}
	if posts[0].ID != "1002" || posts[0].RetweetCount != 3 || posts[0].LikeCount != 10 {
		t.Errorf("posts[0] = %+v", posts[0])
	}
	if posts[1].Author.UserName != "alice" || posts[1].Author.Name != "Alice" {
		t.Errorf("posts[1].Author = %+v, want {alice Alice}", posts[1].Author)
	}
}

func TestClient_LastTweets_OmitsEmptySinceID(t *testing.T) {
	var hasSince bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasSince = r.URL.Query()["since_id"]
		w.Write([]byte(`{"status":"success","data":{"tweets":[]}}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(srv.Client(), "k", srv.URL, 0, newTestLogger(&buf))

	posts, err := c.LastTweets(context.Background(), "alice", "", 20)
	if err != nil {
		t.Fatalf("LastTweets がエラーを返した: %v", err)
	}
	if hasSince {
		t.Error("since_id should not be sent when cursor is empty")
	}
	if len(posts) != 0 {
		t.Errorf("len(posts) = %d, want 0", len(posts))
	}
}

func TestClient_LastTweets_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"非2xx", http.StatusTooManyRequests, `{"error":"rate limited"}`, "429"},
		{"不正なJSON", http.StatusOK, `not json`, "パース"},
		{"status失敗", http.StatusOK, `{"status":"error","msg":"user not found"}`, "user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var buf bytes.Buffer
			c := NewClient(srv.Client(), "k", srv.URL, 0, newTestLogger(&buf))

			posts, err := c.LastTweets(context.Background(), "alice", "", 20)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantMsg)
			}
			if posts != nil {
				t.Errorf("posts = %v, want nil", posts)
			}
		})
	}
}

func TestClient_LastTweets_RateLimited(t *testing.T) {
	var calls []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, time.Now())
		w.Write([]byte(`{"status":"success","data":{"tweets":[]}}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(srv.Client(), "k", srv.URL, 20, newTestLogger(&buf)) // 50ms間隔

	for i := 0; i < 3; i++ {
		if _, err := c.LastTweets(context.Background(), "alice", "", 20); err != nil {
			t.Fatalf("LastTweets がエラーを返した: %v", err)
		}
	}

	if len(calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(calls))
	}
	if elapsed := calls[2].Sub(calls[0]); elapsed < 80*time.Millisecond {
		t.Errorf("3 requests took %v, want >= 80ms with 20 rps limit", elapsed)
	}
}

func TestClient_LastTweets_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"tweets":[]}}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(srv.Client(), "k", srv.URL, 0, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.LastTweets(ctx, "alice", "", 20); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestClient_LastTweets_ErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	// 先頭200バイトで切るとマルチバイト文字の途中で切れる本文
	body := "x" + strings.Repeat("あ", 250)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "k", srv.URL, 0, newTestLogger(&bytes.Buffer{}))
	_, err := c.LastTweets(context.Background(), "alice", "", 20)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !utf8.ValidString(err.Error()) {
		t.Errorf("error message is not valid UTF-8: %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Errorf("error = %q, want truncated body", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"ビットコイン急騰", 3, "ビット..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
