package record

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tweetsense/internal/model"
	"github.com/hitoshi/tweetsense/internal/repository"
)

// fakeRepo はテスト用のメモリ上のリポジトリ。
type fakeRepo struct {
	mu        sync.Mutex
	records   map[string]model.SentimentRecord
	createErr error
	queryErr  error
	since     time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]model.SentimentRecord)}
}

func (f *fakeRepo) Create(_ context.Context, rec *model.SentimentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.records[rec.ID]; ok {
		return repository.ErrDuplicate
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeRepo) Latest(_ context.Context, keyword string, limit int) ([]model.SentimentRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []model.SentimentRecord
	for _, r := range f.records {
		if strings.Contains(strings.ToLower(r.Text), strings.ToLower(keyword)) {
			out = append(out, r)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) CountBySentiment(_ context.Context, keyword string, since time.Time) (map[model.Sentiment]int, error) {
	f.since = since
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	counts := make(map[model.Sentiment]int)
	for _, r := range f.records {
		if strings.Contains(strings.ToLower(r.Text), strings.ToLower(keyword)) {
			counts[r.Sentiment]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

// fakeVectorRepo は VectorIndex も実装するリポジトリ。
type fakeVectorRepo struct {
	*fakeRepo
	embeddings map[string][]float32
	setErr     error
}

func (f *fakeVectorRepo) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.embeddings[id] = embedding
	return nil
}

func (f *fakeVectorRepo) Similar(_ context.Context, _ []float32, limit int) ([]model.SentimentRecord, error) {
	var out []model.SentimentRecord
	for id := range f.embeddings {
		out = append(out, f.records[id])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeStoreMetrics struct {
	outcomes []model.PutOutcome
}

func (f *fakeStoreMetrics) RecordStoreOutcome(o model.PutOutcome) {
	f.outcomes = append(f.outcomes, o)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func samplePost(id, text string) model.Post {
	return model.Post{
		ID:        id,
		Text:      text,
		Author:    model.Author{UserName: "whale_alert", Name: "Whale Alert"},
		CreatedAt: "Thu May 15 22:00:22 +0000 2025",
	}
}

func TestIdentityKey_Deterministic(t *testing.T) {
	a := IdentityKey("1923456789")
	b := IdentityKey("1923456789")
	c := IdentityKey("1923456790")

	if a != b {
		t.Errorf("同じ投稿IDで異なるキー: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("異なる投稿IDで同じキー: %q", a)
	}
	if len(a) != 36 {
		t.Errorf("UUID形式ではありません: %q", a)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*60*60))

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"上流の書式", "Thu May 15 22:00:22 +0000 2025", "2025-05-15T22:00:22Z", true},
		{"タイムゾーン付きの上流書式", "Thu May 15 22:00:22 +0900 2025", "2025-05-15T13:00:22Z", true},
		{"RFC3339はそのまま", "2025-05-15T22:00:22Z", "2025-05-15T22:00:22Z", true},
		{"解釈不能は現在時刻", "yesterday", "2025-06-01T03:00:00Z", false},
		{"空文字は現在時刻", "", "2025-06-01T03:00:00Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.raw, now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeTimestamp(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStore_Put_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	metrics := &fakeStoreMetrics{}
	store := NewStore(repo, nil, metrics, newTestLogger(&bytes.Buffer{}))
	post := samplePost("1001", "BTC to the moon")

	first, err := store.Put(context.Background(), post, model.SentimentPositive)
	if err != nil || first != model.PutOutcomeNew {
		t.Fatalf("1回目: got (%v, %v), want new", first, err)
	}

	second, err := store.Put(context.Background(), post, model.SentimentNegative)
	if err != nil || second != model.PutOutcomeExisting {
		t.Fatalf("2回目: got (%v, %v), want existing", second, err)
	}

	if len(repo.records) != 1 {
		t.Fatalf("レコード数 = %d, want 1", len(repo.records))
	}
	rec := repo.records[IdentityKey("1001")]
	if rec.Sentiment != model.SentimentPositive {
		t.Errorf("既存レコードが変更されています: sentiment = %q", rec.Sentiment)
	}
	if rec.Timestamp != "2025-05-15T22:00:22Z" {
		t.Errorf("timestamp = %q", rec.Timestamp)
	}
	if rec.Source != "@whale_alert" || rec.PostID != "1001" {
		t.Errorf("レコードの内容が不正: %+v", rec)
	}
	if len(metrics.outcomes) != 2 {
		t.Errorf("メトリクス記録数 = %d, want 2", len(metrics.outcomes))
	}
}

func TestStore_Put_EmptyID(t *testing.T) {
	store := NewStore(newFakeRepo(), nil, nil, newTestLogger(&bytes.Buffer{}))

	outcome, err := store.Put(context.Background(), model.Post{Text: "no id"}, model.SentimentNeutral)
	if !errors.Is(err, ErrEmptyPostID) || outcome != model.PutOutcomeError {
		t.Errorf("got (%v, %v), want (error, ErrEmptyPostID)", outcome, err)
	}
}

func TestStore_Put_UnparseableTimestamp(t *testing.T) {
	var buf bytes.Buffer
	repo := newFakeRepo()
	store := NewStore(repo, nil, nil, newTestLogger(&buf))
	store.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	post := samplePost("2002", "ETH")
	post.CreatedAt = "not a date"
	if _, err := store.Put(context.Background(), post, model.SentimentNeutral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.records[IdentityKey("2002")].Timestamp; got != "2025-06-01T00:00:00Z" {
		t.Errorf("timestamp = %q", got)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("警告ログが出力されていません: %s", buf.String())
	}
}

func TestStore_PutBatch(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, nil, nil, newTestLogger(&bytes.Buffer{}))

	if _, err := store.Put(context.Background(), samplePost("1", "BTC"), model.SentimentPositive); err != nil {
		t.Fatal(err)
	}

	items := []model.ClassifiedPost{
		{Post: samplePost("1", "BTC"), Sentiment: model.SentimentPositive},
		{Post: samplePost("2", "ETH"), Sentiment: model.SentimentNegative},
		{Post: samplePost("3", "SOL"), Sentiment: model.SentimentNeutral},
		{Post: model.Post{Text: "missing id"}, Sentiment: model.SentimentNeutral},
	}
	stats := store.PutBatch(context.Background(), items)

	want := model.BatchStats{New: 2, Existing: 1, Error: 1, TotalProcessed: 4}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if stats.New+stats.Existing+stats.Error != stats.TotalProcessed {
		t.Errorf("集計の不変条件が崩れています: %+v", stats)
	}
}

func TestStore_PutBatch_RepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("connection refused")
	store := NewStore(repo, nil, nil, newTestLogger(&bytes.Buffer{}))

	stats := store.PutBatch(context.Background(), []model.ClassifiedPost{
		{Post: samplePost("1", "BTC"), Sentiment: model.SentimentPositive},
		{Post: samplePost("2", "BTC"), Sentiment: model.SentimentPositive},
	})

	if stats.Error != 2 || stats.TotalProcessed != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStore_Latest(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, nil, nil, newTestLogger(&bytes.Buffer{}))
	ctx := context.Background()

	store.PutBatch(ctx, []model.ClassifiedPost{
		{Post: samplePost("1", "Buying more btc"), Sentiment: model.SentimentPositive},
		{Post: samplePost("2", "ETH gas fees"), Sentiment: model.SentimentNegative},
	})

	got := store.Latest(ctx, "BTC", 10)
	if len(got) != 1 || got[0].PostID != "1" {
		t.Errorf("Latest = %+v", got)
	}

	if got := store.Latest(ctx, "BTC", 0); len(got) != 0 {
		t.Errorf("count=0 で %d 件返されました", len(got))
	}

	repo.queryErr = errors.New("timeout")
	if got := store.Latest(ctx, "BTC", 10); len(got) != 0 {
		t.Errorf("失敗時は空を返すべき: %+v", got)
	}
}

func TestStore_Trend(t *testing.T) {
	repo := newFakeRepo()
	store := NewStore(repo, nil, nil, newTestLogger(&bytes.Buffer{}))
	now := time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.PutBatch(ctx, []model.ClassifiedPost{
		{Post: samplePost("1", "BTC up"), Sentiment: model.SentimentPositive},
		{Post: samplePost("2", "BTC up again"), Sentiment: model.SentimentPositive},
		{Post: samplePost("3", "BTC down"), Sentiment: model.SentimentNegative},
	})

	trend := store.Trend(ctx, "btc", 24)
	if trend.Total != 3 || trend.Counts[model.SentimentPositive] != 2 || trend.Counts[model.SentimentNegative] != 1 {
		t.Errorf("trend = %+v", trend)
	}
	if _, ok := trend.Counts[model.SentimentNeutral]; !ok {
		t.Error("neutral のキーが存在しません")
	}
	if !repo.since.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("since = %v", repo.since)
	}

	repo.queryErr = errors.New("timeout")
	trend = store.Trend(ctx, "btc", 24)
	if trend.Total != 0 || len(trend.Counts) != len(model.Sentiments()) {
		t.Errorf("失敗時はゼロの集計を返すべき: %+v", trend)
	}
}

func TestStore_Embeddings(t *testing.T) {
	repo := &fakeVectorRepo{fakeRepo: newFakeRepo(), embeddings: make(map[string][]float32)}
	embedder := &fakeEmbedder{}
	store := NewStore(repo, embedder, nil, newTestLogger(&bytes.Buffer{}))
	ctx := context.Background()

	if !store.SupportsSimilarity() {
		t.Fatal("ベクトル検索が有効になっていません")
	}

	post := samplePost("1", "SOL breakout")
	store.Put(ctx, post, model.SentimentPositive)
	store.Put(ctx, post, model.SentimentPositive)

	if embedder.calls != 1 {
		t.Errorf("埋め込み呼び出し回数 = %d, want 1（既存レコードでは呼ばない）", embedder.calls)
	}
	if _, ok := repo.embeddings[IdentityKey("1")]; !ok {
		t.Error("埋め込みベクトルが設定されていません")
	}

	got := store.Similar(ctx, "solana pump", 5)
	if len(got) != 1 || got[0].PostID != "1" {
		t.Errorf("Similar = %+v", got)
	}
}

func TestStore_EmbeddingFailureDoesNotFailPut(t *testing.T) {
	var buf bytes.Buffer
	repo := &fakeVectorRepo{fakeRepo: newFakeRepo(), embeddings: make(map[string][]float32)}
	store := NewStore(repo, &fakeEmbedder{err: errors.New("quota exceeded")}, nil, newTestLogger(&buf))

	outcome, err := store.Put(context.Background(), samplePost("1", "BTC"), model.SentimentNeutral)
	if err != nil || outcome != model.PutOutcomeNew {
		t.Errorf("got (%v, %v), want new", outcome, err)
	}
	if !strings.Contains(buf.String(), "埋め込みベクトルの設定に失敗しました") {
		t.Errorf("警告ログがありません: %s", buf.String())
	}
	if got := store.Similar(context.Background(), "BTC", 5); len(got) != 0 {
		t.Errorf("埋め込み失敗時は空を返すべき: %+v", got)
	}
}

func TestStore_SimilarWithoutVectorIndex(t *testing.T) {
	store := NewStore(newFakeRepo(), &fakeEmbedder{}, nil, newTestLogger(&bytes.Buffer{}))
	if store.SupportsSimilarity() {
		t.Error("VectorIndex 非対応のリポジトリで有効になっています")
	}
	if got := store.Similar(context.Background(), "BTC", 5); got != nil {
		t.Errorf("Similar = %+v, want nil", got)
	}
}
