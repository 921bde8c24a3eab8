package model

import "strings"

// Sentiment は感情分類ラベルを表す。positive / neutral / negative の3値のみ。
type Sentiment string

const (
	// SentimentPositive はポジティブなラベル。
	SentimentPositive Sentiment = "positive"
	// SentimentNeutral はニュートラルなラベル。分類失敗時のフォールバックにも使う。
	SentimentNeutral Sentiment = "neutral"
	// SentimentNegative はネガティブなラベル。
	SentimentNegative Sentiment = "negative"
)

// Sentiments は全ラベルを定義順に返す。
func Sentiments() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// ParseSentiment はモデルの生出力をラベルに変換する。
// 前後の空白・引用符・句読点を除去し、小文字化して比較する。
// 3値のいずれにも一致しない場合は ok=false を返す。
func ParseSentiment(raw string) (Sentiment, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, " \t\r\n\"'.,!:;")
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(s), true
	default:
		return "", false
	}
}

// ClassifiedPost は投稿と分類結果の組。
type ClassifiedPost struct {
	Post      Post
	Sentiment Sentiment
}

// SentimentRecord は永続化された分類結果を表す。
// ID は投稿IDから決定的に導出される識別キーで、作成後は変更されない。
type SentimentRecord struct {
	ID             string    `json:"id"`
	PostID         string    `json:"tweet_id"`
	Text           string    `json:"tweet_text"`
	Sentiment      Sentiment `json:"sentiment"`
	Timestamp      string    `json:"timestamp"` // RFC3339 (UTC, "Z" 終端)
	Source         string    `json:"source"`
	AuthorUsername string    `json:"author_username"`
	AuthorName     string    `json:"author_name"`
	RetweetCount   int       `json:"retweet_count"`
	LikeCount      int       `json:"like_count"`
}

// PutOutcome は1件の書き込み結果を表す。
type PutOutcome string

const (
	// PutOutcomeNew は新規に保存されたことを表す。
	PutOutcomeNew PutOutcome = "new"
	// PutOutcomeExisting は同一識別キーが既に存在し、何もしなかったことを表す。エラーではない。
	PutOutcomeExisting PutOutcome = "existing"
	// PutOutcomeError は重複以外の理由で保存に失敗したことを表す。
	PutOutcomeError PutOutcome = "error"
)

// BatchStats は一括保存の集計結果。
// New + Existing + Error == TotalProcessed が常に成り立つ。
type BatchStats struct {
	New            int `json:"new"`
	Existing       int `json:"existing"`
	Error          int `json:"error"`
	TotalProcessed int `json:"total_processed"`
}

// Add は1件分の結果を集計に加える。
func (s *BatchStats) Add(outcome PutOutcome) {
	switch outcome {
	case PutOutcomeNew:
		s.New++
	case PutOutcomeExisting:
		s.Existing++
	default:
		s.Error++
	}
	s.TotalProcessed++
}

// SentimentTrend はキーワードの直近ウィンドウ内のラベル別件数。
type SentimentTrend struct {
	Keyword     string            `json:"keyword"`
	WindowHours int               `json:"window_hours"`
	Total       int               `json:"total"`
	Counts      map[Sentiment]int `json:"counts"`
}

// NewSentimentTrend は全ラベルを0で初期化した集計を返す。
func NewSentimentTrend(keyword string, windowHours int) SentimentTrend {
	counts := make(map[Sentiment]int, 3)
	for _, s := range Sentiments() {
		counts[s] = 0
	}
	return SentimentTrend{Keyword: keyword, WindowHours: windowHours, Counts: counts}
}
