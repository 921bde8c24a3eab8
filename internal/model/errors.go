package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, store, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingKeyword = "MISSING_KEYWORD"
	ErrCodeInvalidParam   = "INVALID_PARAM"
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED"
)

// NewMissingKeywordError はキーワード未指定エラーを生成する。
func NewMissingKeywordError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingKeyword,
		Message:  "keyword パラメータが指定されていません。",
		Category: "validation",
		Action:   "keyword クエリパラメータを指定してください。",
	}
}

// NewInvalidParamError は数値パラメータの不正エラーを生成する。
func NewInvalidParamError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParam,
		Message:  fmt.Sprintf("パラメータ %s の値が不正です: %s", name, value),
		Category: "validation",
		Action:   "1以上の整数を指定してください。",
	}
}

// ErrCodeMissingParam は必須パラメータ未指定のエラーコード。
const ErrCodeMissingParam = "MISSING_PARAM"

// ErrCodeSimilarityUnavailable は類似検索が利用できないことを表すエラーコード。
const ErrCodeSimilarityUnavailable = "SIMILARITY_UNAVAILABLE"

// NewMissingParamError は必須パラメータ未指定エラーを生成する。
func NewMissingParamError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingParam,
		Message:  fmt.Sprintf("%s パラメータが指定されていません。", name),
		Category: "validation",
		Action:   fmt.Sprintf("%s クエリパラメータを指定してください。", name),
	}
}

// NewSimilarityUnavailableError は類似検索が無効な構成であることを表すエラーを生成する。
func NewSimilarityUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSimilarityUnavailable,
		Message:  "類似検索は現在の構成では利用できません。",
		Category: "store",
		Action:   "STORE_BACKEND=postgres かつ EMBEDDINGS_ENABLED=true で起動してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再度お試しください。",
	}
}
