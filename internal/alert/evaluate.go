// Package alert はポジティブ感情の閾値判定と、キーワード単位のクールダウン付き通知を提供する。
package alert

import (
	"fmt"
	"math"

	"github.com/hitoshi/tweetsense/internal/model"
)

const (
	// MinSampleSize は評価に必要な最小レコード数。
	MinSampleSize = 10
	// ReasonInsufficientData はサンプル不足で評価しなかったことを表す理由。
	ReasonInsufficientData = "insufficient data"
)

// Evaluation はキーワード1件分の閾値評価結果。
type Evaluation struct {
	Keyword       string  `json:"keyword"`
	Triggered     bool    `json:"triggered"`
	PositiveCount int     `json:"positive_count"`
	TotalCount    int     `json:"total_count"`
	Percentage    float64 `json:"percentage"`
	Reason        string  `json:"reason,omitempty"`
}

// Evaluate は直近のレコード群のポジティブ件数が threshold 以上かを判定する。
// レコードが MinSampleSize 件未満の場合は評価せず、Reason に理由を設定する。
// records には呼び出し元が選んだ直近N件をそのまま渡す。
func Evaluate(keyword string, records []model.SentimentRecord, threshold int) Evaluation {
	if len(records) < MinSampleSize {
		return Evaluation{
			Keyword:    keyword,
			TotalCount: len(records),
			Reason:     ReasonInsufficientData,
		}
	}

	positive := 0
	for _, r := range records {
		if r.Sentiment == model.SentimentPositive {
			positive++
		}
	}

	pct := float64(positive) / float64(len(records)) * 100
	return Evaluation{
		Keyword:       keyword,
		Triggered:     positive >= threshold,
		PositiveCount: positive,
		TotalCount:    len(records),
		Percentage:    math.Round(pct*10) / 10,
	}
}

// FormatAlert は評価結果から通知メッセージを組み立てる。
func FormatAlert(e Evaluation) string {
	return fmt.Sprintf(
		"🔥 Positive sentiment alert for %s! %d/%d recent tweets (%.1f%%) are positive. Consider potential investment opportunities.",
		e.Keyword, e.PositiveCount, e.TotalCount, e.Percentage,
	)
}
