package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/hitoshi/tweetsense/internal/model"
)

// PostgresRecordRepo はPostgreSQL（pgvector拡張）を使用した感情分類レコードのリポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

const recordColumns = `id, post_id, text, sentiment, timestamp, source,
		        author_username, author_name, retweet_count, like_count`

// Create はレコードを作成する。同一IDが存在する場合は何もせず ErrDuplicate を返す。
func (r *PostgresRecordRepo) Create(ctx context.Context, rec *model.SentimentRecord) error {
	ts, err := time.Parse(canonicalTimestamp, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("timestampのパースに失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sentiment_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.PostID, rec.Text, string(rec.Sentiment), ts, rec.Source,
		rec.AuthorUsername, rec.AuthorName, rec.RetweetCount, rec.LikeCount,
	)
	if err != nil {
		return fmt.Errorf("レコードの作成に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("作成件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// Latest は本文にキーワードを含むレコードを新しい順に返す。
func (r *PostgresRecordRepo) Latest(ctx context.Context, keyword string, limit int) ([]model.SentimentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM sentiment_records
		 WHERE strpos(lower(text), lower($1)) > 0
		 ORDER BY timestamp DESC
		 LIMIT $2`,
		keyword, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("最新レコードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountBySentiment は since 以降のラベル別件数を返す。
func (r *PostgresRecordRepo) CountBySentiment(ctx context.Context, keyword string, since time.Time) (map[model.Sentiment]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sentiment, COUNT(*)
		 FROM sentiment_records
		 WHERE strpos(lower(text), lower($1)) > 0 AND timestamp >= $2
		 GROUP BY sentiment`,
		keyword, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("ラベル別件数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Sentiment]int)
	for rows.Next() {
		var sentiment string
		var count int
		if err := rows.Scan(&sentiment, &count); err != nil {
			return nil, fmt.Errorf("ラベル別件数のスキャンに失敗しました: %w", err)
		}
		counts[model.Sentiment(sentiment)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ラベル別件数の反復処理に失敗しました: %w", err)
	}
	return counts, nil
}

// SetEmbedding はレコードに埋め込みベクトルを設定する。
func (r *PostgresRecordRepo) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sentiment_records SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return fmt.Errorf("埋め込みベクトルの更新に失敗しました: %w", err)
	}
	return nil
}

// Similar は埋め込みベクトルのコサイン距離が近い順にレコードを返す。
func (r *PostgresRecordRepo) Similar(ctx context.Context, embedding []float32, limit int) ([]model.SentimentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+`
		 FROM sentiment_records
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("類似レコードの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresRecordRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanRecords(rows *sql.Rows) ([]model.SentimentRecord, error) {
	var records []model.SentimentRecord
	for rows.Next() {
		var rec model.SentimentRecord
		var sentiment string
		var ts time.Time
		if err := rows.Scan(
			&rec.ID, &rec.PostID, &rec.Text, &sentiment, &ts, &rec.Source,
			&rec.AuthorUsername, &rec.AuthorName, &rec.RetweetCount, &rec.LikeCount,
		); err != nil {
			return nil, fmt.Errorf("レコードのスキャンに失敗しました: %w", err)
		}
		rec.Sentiment = model.Sentiment(sentiment)
		rec.Timestamp = formatTimestamp(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レコードの反復処理に失敗しました: %w", err)
	}
	return records, nil
}
