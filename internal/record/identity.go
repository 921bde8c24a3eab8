// Package record は感情分類レコードの重複排除付き保存と検索を提供する。
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tweetsense/internal/model"
)

// identityPrefix は識別キーの導出に使う名前空間プレフィックス。
const identityPrefix = "twitter:"

// twitterTimeLayout は上流の投稿日時の書式（例: "Thu May 15 22:00:22 +0000 2025"）。
const twitterTimeLayout = "Mon Jan _2 15:04:05 -0700 2006"

// canonicalLayout は保存時の正規化後の書式（UTC, "Z" 終端）。
const canonicalLayout = time.RFC3339

// IdentityKey は投稿IDから決定的に識別キーを導出する。
// URL名前空間の UUIDv5 を使うため、同じ投稿IDからは常に同じキーが得られる。
func IdentityKey(postID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(identityPrefix+postID)).String()
}

// NormalizeTimestamp は投稿日時を正規化する。
//
// 既に RFC3339 形式であればそのまま返す。上流の書式であれば UTC の RFC3339 に変換する。
// いずれにも当てはまらない場合は now を UTC で返し、ok=false を返す。
func NormalizeTimestamp(raw string, now time.Time) (normalized string, ok bool) {
	if _, err := time.Parse(canonicalLayout, raw); err == nil {
		return raw, true
	}
	if t, err := time.Parse(twitterTimeLayout, raw); err == nil {
		return t.UTC().Format(canonicalLayout), true
	}
	return now.UTC().Format(canonicalLayout), false
}

// newRecord は投稿と分類結果から保存用レコードを組み立てる。
func newRecord(post model.Post, sentiment model.Sentiment, timestamp string) model.SentimentRecord {
	return model.SentimentRecord{
		ID:             IdentityKey(post.ID),
		PostID:         post.ID,
		Text:           post.Text,
		Sentiment:      sentiment,
		Timestamp:      timestamp,
		Source:         post.Source(),
		AuthorUsername: post.Author.UserName,
		AuthorName:     post.Author.Name,
		RetweetCount:   post.RetweetCount,
		LikeCount:      post.LikeCount,
	}
}
