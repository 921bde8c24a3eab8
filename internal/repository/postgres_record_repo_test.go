package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/tweetsense/internal/model"
)

// TestPostgresRecordRepo_ImplementsInterface はPostgresRecordRepoが必要なインターフェースを実装することを検証する。
func TestPostgresRecordRepo_ImplementsInterface(t *testing.T) {
	// コンパイル時チェック
	var _ RecordRepository = (*PostgresRecordRepo)(nil)
	var _ VectorIndex = (*PostgresRecordRepo)(nil)
}

func newMockRepo(t *testing.T) (*PostgresRecordRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New がエラーを返した: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRecordRepo(db), mock
}

func sampleRecord() *model.SentimentRecord {
	return &model.SentimentRecord{
		ID:             "0b0f6d1e-0000-5000-8000-000000000001",
		PostID:         "1002",
		Text:           "BTC breaking out",
		Sentiment:      model.SentimentPositive,
		Timestamp:      "2025-05-15T22:00:22Z",
		Source:         "@alice",
		AuthorUsername: "alice",
		AuthorName:     "Alice",
		RetweetCount:   3,
		LikeCount:      10,
	}
}

var recordRowColumns = []string{
	"id", "post_id", "text", "sentiment", "timestamp", "source",
	"author_username", "author_name", "retweet_count", "like_count",
}

func TestPostgresRecordRepo_Create_New(t *testing.T) {
	repo, mock := newMockRepo(t)
	rec := sampleRecord()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sentiment_records")).
		WithArgs(rec.ID, rec.PostID, rec.Text, "positive", time.Date(2025, 5, 15, 22, 0, 22, 0, time.UTC),
			rec.Source, rec.AuthorUsername, rec.AuthorName, rec.RetweetCount, rec.LikeCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("未充足の期待値: %v", err)
	}
}

func TestPostgresRecordRepo_Create_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), sampleRecord())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() error = %v, want ErrDuplicate", err)
	}
}

func TestPostgresRecordRepo_Create_DBError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sentiment_records")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), sampleRecord())
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() error = %v, want non-duplicate error", err)
	}
}

func TestPostgresRecordRepo_Create_InvalidTimestamp(t *testing.T) {
	repo, _ := newMockRepo(t)
	rec := sampleRecord()
	rec.Timestamp = "yesterday"

	if err := repo.Create(context.Background(), rec); err == nil {
		t.Fatal("expected error for invalid timestamp")
	}
}

func TestPostgresRecordRepo_Latest(t *testing.T) {
	repo, mock := newMockRepo(t)

	ts := time.Date(2025, 5, 15, 22, 0, 22, 0, time.FixedZone("JST", 9*60*60))
	rows := sqlmock.NewRows(recordRowColumns).
		AddRow("id-1", "1002", "BTC up", "positive", ts, "@alice", "alice", "Alice", 1, 2).
		AddRow("id-2", "1001", "btc down", "negative", ts.Add(-time.Hour), "@bob", "bob", "Bob", 0, 0)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp DESC")).
		WithArgs("BTC", 10).
		WillReturnRows(rows)

	got, err := repo.Latest(context.Background(), "BTC", 10)
	if err != nil {
		t.Fatalf("Latest がエラーを返した: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Timestamp != "2025-05-15T13:00:22Z" {
		t.Errorf("got[0].Timestamp = %q, want UTC canonical", got[0].Timestamp)
	}
	if got[1].Sentiment != model.SentimentNegative {
		t.Errorf("got[1].Sentiment = %q, want negative", got[1].Sentiment)
	}
}

func TestPostgresRecordRepo_Latest_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sentiment_records")).
		WillReturnError(errors.New("timeout"))

	if _, err := repo.Latest(context.Background(), "BTC", 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresRecordRepo_CountBySentiment(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := time.Date(2025, 5, 14, 22, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY sentiment")).
		WithArgs("ETH", since).
		WillReturnRows(sqlmock.NewRows([]string{"sentiment", "count"}).
			AddRow("positive", 4).
			AddRow("neutral", 2))

	got, err := repo.CountBySentiment(context.Background(), "ETH", since)
	if err != nil {
		t.Fatalf("CountBySentiment がエラーを返した: %v", err)
	}
	if got[model.SentimentPositive] != 4 || got[model.SentimentNeutral] != 2 || got[model.SentimentNegative] != 0 {
		t.Errorf("counts = %v, want positive=4 neutral=2", got)
	}
}

func TestPostgresRecordRepo_SetEmbeddingAndSimilar(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sentiment_records SET embedding")).
		WithArgs(sqlmock.AnyArg(), "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetEmbedding(context.Background(), "id-1", []float32{0.1, 0.2}); err != nil {
		t.Fatalf("SetEmbedding がエラーを返した: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY embedding <=> $1")).
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow("id-1", "1002", "BTC up", "positive", time.Now(), "@alice", "alice", "Alice", 1, 2))

	got, err := repo.Similar(context.Background(), []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("Similar がエラーを返した: %v", err)
	}
	if len(got) != 1 || got[0].ID != "id-1" {
		t.Errorf("Similar() = %+v, want [id-1]", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("未充足の期待値: %v", err)
	}
}
