package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/tweetsense/internal/middleware"
	"github.com/hitoshi/tweetsense/internal/model"
)

const (
	// defaultCount は一覧取得の既定件数。
	defaultCount = 10
	// maxCount は一覧取得の上限件数。
	maxCount = 100
	// defaultTrendHours はトレンド集計の既定ウィンドウ（時間）。
	defaultTrendHours = 24
	// maxTrendHours はトレンド集計ウィンドウの上限（30日）。
	maxTrendHours = 24 * 30
)

// SentimentQuerier はセンチメントハンドラーが必要とする参照インターフェース。
type SentimentQuerier interface {
	Latest(ctx context.Context, keyword string, count int) []model.SentimentRecord
	Trend(ctx context.Context, keyword string, windowHours int) model.SentimentTrend
	Similar(ctx context.Context, text string, count int) []model.SentimentRecord
	SupportsSimilarity() bool
}

// SentimentHandler はセンチメントレコード参照のHTTPハンドラー。
type SentimentHandler struct {
	store SentimentQuerier
}

// NewSentimentHandler はSentimentHandlerを生成する。
func NewSentimentHandler(store SentimentQuerier) *SentimentHandler {
	return &SentimentHandler{store: store}
}

// recordListResponse はレコード一覧のレスポンス。
type recordListResponse struct {
	Keyword string                  `json:"keyword,omitempty"`
	Count   int                     `json:"count"`
	Records []model.SentimentRecord `json:"records"`
}

// Latest はキーワードを含む直近のレコードを返す。
// GET /api/sentiments/latest?keyword=BTC&count=10
func (h *SentimentHandler) Latest(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingKeywordError())
		return
	}
	count, apiErr := intParam(r, "count", defaultCount, maxCount)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	records := h.store.Latest(r.Context(), keyword, count)
	middleware.WriteJSON(w, http.StatusOK, newRecordList(keyword, records))
}

// Trend は直近ウィンドウのラベル別件数を返す。
// GET /api/sentiments/trend?keyword=BTC&hours=24
func (h *SentimentHandler) Trend(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingKeywordError())
		return
	}
	hours, apiErr := intParam(r, "hours", defaultTrendHours, maxTrendHours)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.store.Trend(r.Context(), keyword, hours))
}

// Similar はテキストに意味的に近いレコードを返す。
// GET /api/sentiments/similar?text=...&count=5
func (h *SentimentHandler) Similar(w http.ResponseWriter, r *http.Request) {
	if !h.store.SupportsSimilarity() {
		middleware.WriteErrorResponse(w, http.StatusNotImplemented, model.NewSimilarityUnavailableError())
		return
	}
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingParamError("text"))
		return
	}
	count, apiErr := intParam(r, "count", defaultCount, maxCount)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	records := h.store.Similar(r.Context(), text, count)
	middleware.WriteJSON(w, http.StatusOK, newRecordList("", records))
}

func newRecordList(keyword string, records []model.SentimentRecord) recordListResponse {
	if records == nil {
		records = []model.SentimentRecord{}
	}
	return recordListResponse{Keyword: keyword, Count: len(records), Records: records}
}

// intParam は正の整数クエリパラメータを読み取る。未指定なら def、上限を超えれば upper に丸める。
func intParam(r *http.Request, name string, def, upper int) (int, *model.APIError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, model.NewInvalidParamError(name, raw)
	}
	if v > upper {
		v = upper
	}
	return v, nil
}
