package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/tweetsense/internal/model"
)

// ErrDuplicate は同一識別キーのレコードが既に存在することを表す。
// 呼び出し元はこれを失敗ではなく「既存」として扱う。
var ErrDuplicate = errors.New("record already exists")

// RecordRepository は感情分類レコードの永続化インターフェース。
type RecordRepository interface {
	// Create はレコードを識別キー（rec.ID）で作成する。
	// 同一キーが既に存在する場合は ErrDuplicate を返し、既存レコードは変更しない。
	Create(ctx context.Context, rec *model.SentimentRecord) error

	// Latest は本文に keyword を含む（大文字小文字を区別しない部分一致）レコードを
	// timestamp の降順で最大 limit 件返す。
	Latest(ctx context.Context, keyword string, limit int) ([]model.SentimentRecord, error)

	// CountBySentiment は since 以降で本文に keyword を含むレコードのラベル別件数を返す。
	CountBySentiment(ctx context.Context, keyword string, since time.Time) (map[model.Sentiment]int, error)

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// VectorIndex は埋め込みベクトルによる類似検索をサポートするストアのインターフェース。
type VectorIndex interface {
	// SetEmbedding は既存レコードに埋め込みベクトルを設定する。
	SetEmbedding(ctx context.Context, id string, embedding []float32) error

	// Similar は埋め込みベクトルのコサイン距離が近い順に最大 limit 件返す。
	Similar(ctx context.Context, embedding []float32, limit int) ([]model.SentimentRecord, error)
}

// canonicalTimestamp はレコードの timestamp の書式。
const canonicalTimestamp = time.RFC3339

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(canonicalTimestamp)
}
