package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tweetsense/internal/model"
	"github.com/hitoshi/tweetsense/internal/repository"
)

// Embedder は本文を埋め込みベクトルに変換するインターフェース。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StoreMetrics は保存結果のメトリクス記録インターフェース。
type StoreMetrics interface {
	RecordStoreOutcome(outcome model.PutOutcome)
}

// ErrEmptyPostID は投稿IDが空で識別キーを導出できないことを表す。
var ErrEmptyPostID = errors.New("post id is empty")

// Store は感情分類レコードを識別キーで重複排除しながら保存する。
// 同じ投稿IDの再保存は「既存」として報告し、レコードを変更しない。
type Store struct {
	repo     repository.RecordRepository
	vectors  repository.VectorIndex
	embedder Embedder
	metrics  StoreMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore はStoreの新しいインスタンスを生成する。
// repo が repository.VectorIndex を実装し、かつ embedder が非nilの場合、新規レコードに埋め込みベクトルを付与する。
// embedder と metrics は nil でもよい。
func NewStore(repo repository.RecordRepository, embedder Embedder, metrics StoreMetrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:     repo,
		embedder: embedder,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	if v, ok := repo.(repository.VectorIndex); ok {
		s.vectors = v
	}
	return s
}

// Put は投稿と分類結果を1件保存する。
// 戻り値は new / existing / error のいずれか。error の場合のみ err が非nilになる。
func (s *Store) Put(ctx context.Context, post model.Post, sentiment model.Sentiment) (model.PutOutcome, error) {
	outcome, err := s.put(ctx, post, sentiment)
	if s.metrics != nil {
		s.metrics.RecordStoreOutcome(outcome)
	}
	return outcome, err
}

func (s *Store) put(ctx context.Context, post model.Post, sentiment model.Sentiment) (model.PutOutcome, error) {
	if post.ID == "" {
		return model.PutOutcomeError, ErrEmptyPostID
	}

	timestamp, ok := NormalizeTimestamp(post.CreatedAt, s.now())
	if !ok {
		s.logger.Warn("投稿日時を解釈できないため現在時刻で代替します",
			slog.String("post_id", post.ID),
			slog.String("created_at", post.CreatedAt),
		)
	}

	rec := newRecord(post, sentiment, timestamp)

	if err := s.repo.Create(ctx, &rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Debug("既存のレコードのため保存をスキップしました",
				slog.String("post_id", post.ID),
				slog.String("id", rec.ID),
			)
			return model.PutOutcomeExisting, nil
		}
		s.logger.Error("レコードの保存に失敗しました",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		return model.PutOutcomeError, fmt.Errorf("レコードの保存に失敗しました: %w", err)
	}

	s.attachEmbedding(ctx, rec)
	return model.PutOutcomeNew, nil
}

// attachEmbedding は新規レコードに埋め込みベクトルを設定する。失敗しても保存結果には影響しない。
func (s *Store) attachEmbedding(ctx context.Context, rec model.SentimentRecord) {
	if s.vectors == nil || s.embedder == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, rec.Text)
	if err == nil {
		err = s.vectors.SetEmbedding(ctx, rec.ID, vec)
	}
	if err != nil {
		s.logger.Warn("埋め込みベクトルの設定に失敗しました",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// PutBatch は各項目に Put を適用し、結果を集計して返す。
// 個々の失敗でバッチを中断しない。
func (s *Store) PutBatch(ctx context.Context, items []model.ClassifiedPost) model.BatchStats {
	var stats model.BatchStats
	for _, item := range items {
		outcome, _ := s.Put(ctx, item.Post, item.Sentiment)
		stats.Add(outcome)
	}

	s.logger.Info("一括保存が完了しました",
		slog.Int("new", stats.New),
		slog.Int("existing", stats.Existing),
		slog.Int("error", stats.Error),
		slog.Int("total_processed", stats.TotalProcessed),
	)
	return stats
}

// Latest は本文に keyword を含むレコードを新しい順に最大 count 件返す。
// 取得に失敗した場合は空を返す。
func (s *Store) Latest(ctx context.Context, keyword string, count int) []model.SentimentRecord {
	if count <= 0 {
		return nil
	}
	records, err := s.repo.Latest(ctx, keyword, count)
	if err != nil {
		s.logger.Error("最新レコードの取得に失敗しました",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return records
}

// Trend は直近 windowHours 時間のラベル別件数を返す。
// 取得に失敗した場合は全ラベル0件の集計を返す。
func (s *Store) Trend(ctx context.Context, keyword string, windowHours int) model.SentimentTrend {
	trend := model.NewSentimentTrend(keyword, windowHours)
	if windowHours <= 0 {
		return trend
	}

	since := s.now().Add(-time.Duration(windowHours) * time.Hour)
	counts, err := s.repo.CountBySentiment(ctx, keyword, since)
	if err != nil {
		s.logger.Error("トレンドの集計に失敗しました",
			slog.String("keyword", keyword),
			slog.Int("window_hours", windowHours),
			slog.String("error", err.Error()),
		)
		return trend
	}

	for _, label := range model.Sentiments() {
		trend.Counts[label] = counts[label]
		trend.Total += counts[label]
	}
	return trend
}

// Similar は text に意味的に近いレコードを最大 count 件返す。
// ベクトル検索が利用できない場合や失敗した場合は空を返す。
func (s *Store) Similar(ctx context.Context, text string, count int) []model.SentimentRecord {
	if s.vectors == nil || s.embedder == nil || count <= 0 {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Error("検索テキストの埋め込みに失敗しました", slog.String("error", err.Error()))
		return nil
	}
	records, err := s.vectors.Similar(ctx, vec, count)
	if err != nil {
		s.logger.Error("類似レコードの検索に失敗しました", slog.String("error", err.Error()))
		return nil
	}
	return records
}

// SupportsSimilarity はベクトル検索が利用可能かを返す。
func (s *Store) SupportsSimilarity() bool {
	return s.vectors != nil && s.embedder != nil
}

// Ping は下位ストアへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
