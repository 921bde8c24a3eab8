package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/hitoshi/tweetsense/internal/model"
)

// DefaultOpenSearchIndex は感情分類レコードの既定インデックス名。
const DefaultOpenSearchIndex = "sentiment-records"

// recordIndexMapping はインデックス作成時のマッピング。
const recordIndexMapping = `{
  "mappings": {
    "properties": {
      "id":              {"type": "keyword"},
      "tweet_id":        {"type": "keyword"},
      "tweet_text":      {"type": "text", "fields": {"keyword": {"type": "keyword", "ignore_above": 8191}}},
      "sentiment":       {"type": "keyword"},
      "timestamp":       {"type": "date"},
      "source":          {"type": "keyword"},
      "author_username": {"type": "keyword"},
      "author_name":     {"type": "text"},
      "retweet_count":   {"type": "integer"},
      "like_count":      {"type": "integer"}
    }
  }
}`

// OpenSearchRecordRepo はOpenSearchを使用した感情分類レコードのリポジトリ。
// 識別キーをドキュメントIDとして op_type=create で書き込み、重複を409で検出する。
type OpenSearchRecordRepo struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchClient はOpenSearchクライアントを生成する。
func NewOpenSearchClient(address, username, password string) (*opensearch.Client, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{address},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenSearchクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// NewOpenSearchRecordRepo はOpenSearchRecordRepoを生成する。index が空の場合は既定のインデックス名を使う。
func NewOpenSearchRecordRepo(client *opensearch.Client, index string) *OpenSearchRecordRepo {
	if index == "" {
		index = DefaultOpenSearchIndex
	}
	return &OpenSearchRecordRepo{client: client, index: index}
}

// EnsureIndex はインデックスが存在しなければマッピング付きで作成する。
func (r *OpenSearchRecordRepo) EnsureIndex(ctx context.Context) error {
	res, err := r.client.Do(ctx, opensearchapi.IndicesExistsReq{Indices: []string{r.index}}, nil)
	if err != nil {
		return fmt.Errorf("インデックスの存在確認に失敗しました: %w", err)
	}
	drain(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("インデックスの存在確認でエラーが返されました: %s", res.Status())
	}

	res, err = r.client.Do(ctx, opensearchapi.IndicesCreateReq{
		Index: r.index,
		Body:  strings.NewReader(recordIndexMapping),
	}, nil)
	if err != nil {
		return fmt.Errorf("インデックスの作成に失敗しました: %w", err)
	}
	defer drain(res)
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("インデックスの作成でエラーが返されました: %s", res.Status())
	}
	return nil
}

// Create はレコードを作成する。同一IDが存在する場合は ErrDuplicate を返す。
func (r *OpenSearchRecordRepo) Create(ctx context.Context, rec *model.SentimentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("レコードのシリアライズに失敗しました: %w", err)
	}

	res, err := r.client.Do(ctx, opensearchapi.IndexReq{
		Index:      r.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(payload),
		Params: opensearchapi.IndexParams{
			OpType:  "create",
			Refresh: "true",
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("レコードの作成に失敗しました: %w", err)
	}
	defer drain(res)

	if res.StatusCode == http.StatusConflict {
		return ErrDuplicate
	}
	if res.IsError() {
		return fmt.Errorf("レコードの作成でエラーが返されました: %s", res.Status())
	}
	return nil
}

// searchResponse は検索APIのレスポンスのうち利用する部分。
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.SentimentRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		BySentiment struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"by_sentiment"`
	} `json:"aggregations"`
}

// Latest は本文にキーワードを含むレコードを新しい順に返す。
func (r *OpenSearchRecordRepo) Latest(ctx context.Context, keyword string, limit int) ([]model.SentimentRecord, error) {
	query := map[string]any{
		"size":  limit,
		"sort":  []any{map[string]any{"timestamp": map[string]any{"order": "desc"}}},
		"query": keywordQuery(keyword),
	}

	var resp searchResponse
	if err := r.search(ctx, query, &resp); err != nil {
		return nil, fmt.Errorf("最新レコードの取得に失敗しました: %w", err)
	}

	records := make([]model.SentimentRecord, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		records = append(records, h.Source)
	}
	return records, nil
}

// CountBySentiment は since 以降のラベル別件数を terms 集計で返す。
func (r *OpenSearchRecordRepo) CountBySentiment(ctx context.Context, keyword string, since time.Time) (map[model.Sentiment]int, error) {
	query := map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					keywordQuery(keyword),
					map[string]any{"range": map[string]any{"timestamp": map[string]any{"gte": formatTimestamp(since)}}},
				},
			},
		},
		"aggs": map[string]any{
			"by_sentiment": map[string]any{"terms": map[string]any{"field": "sentiment", "size": 10}},
		},
	}

	var resp searchResponse
	if err := r.search(ctx, query, &resp); err != nil {
		return nil, fmt.Errorf("ラベル別件数の取得に失敗しました: %w", err)
	}

	counts := make(map[model.Sentiment]int)
	for _, b := range resp.Aggregations.BySentiment.Buckets {
		counts[model.Sentiment(b.Key)] = b.DocCount
	}
	return counts, nil
}

// Ping はクラスタのヘルスを確認する。
func (r *OpenSearchRecordRepo) Ping(ctx context.Context) error {
	res, err := r.client.Do(ctx, opensearchapi.ClusterHealthReq{}, nil)
	if err != nil {
		return fmt.Errorf("OpenSearchへの接続に失敗しました: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("OpenSearchのヘルスチェックでエラーが返されました: %s", res.Status())
	}
	return nil
}

func (r *OpenSearchRecordRepo) search(ctx context.Context, query map[string]any, out *searchResponse) error {
	body, err := json.Marshal(query)
	if err != nil {
		return err
	}

	res, err := r.client.Do(ctx, opensearchapi.SearchReq{
		Indices: []string{r.index},
		Body:    bytes.NewReader(body),
	}, nil)
	if err != nil {
		return err
	}
	defer drain(res)

	if res.IsError() {
		return fmt.Errorf("search returned %s", res.Status())
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("検索結果のパースに失敗しました: %w", err)
	}
	return nil
}

// keywordQuery は本文の大文字小文字を区別しない部分一致クエリを返す。
func keywordQuery(keyword string) map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			"tweet_text.keyword": map[string]any{
				"value":            "*" + escapeWildcard(keyword) + "*",
				"case_insensitive": true,
			},
		},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

func readBody(res *opensearch.Response) string {
	if res == nil || res.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(res.Body)
	return string(b)
}

func drain(res *opensearch.Response) {
	if res == nil || res.Body == nil {
		return
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
