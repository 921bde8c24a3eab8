// Package model はドメインモデルを定義する。
package model

import "encoding/json"

// Author は投稿者のハンドルと表示名を表す。
type Author struct {
	UserName string `json:"userName"`
	Name     string `json:"name"`
}

// UnmarshalJSON は上流APIの揺れ（userName/username, name/displayname）を吸収してデコードする。
func (a *Author) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserName    string `json:"userName"`
		Username    string `json:"username"`
		Name        string `json:"name"`
		DisplayName string `json:"displayname"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.UserName = raw.UserName
	if a.UserName == "" {
		a.UserName = raw.Username
	}
	a.Name = raw.Name
	if a.Name == "" {
		a.Name = raw.DisplayName
	}
	return nil
}

// Post は上流APIから取得した投稿を表す。
// 取得後は不変で、1サイクルの間だけパイプラインが保持する。
type Post struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Author       Author `json:"author"`
	CreatedAt    string `json:"createdAt"` // 上流フォーマットのまま保持する
	RetweetCount int    `json:"retweetCount"`
	LikeCount    int    `json:"likeCount"`
}

// Source は投稿元のハンドルを "@handle" 形式で返す。
func (p Post) Source() string {
	return "@" + p.Author.UserName
}

// FetchStatus は1アカウント分の取得結果の種別を表す。
type FetchStatus string

const (
	// FetchStatusOK は1件以上の投稿を取得できたことを表す。
	FetchStatusOK FetchStatus = "ok"
	// FetchStatusEmpty は取得に成功したが該当投稿が0件だったことを表す。
	FetchStatusEmpty FetchStatus = "empty"
	// FetchStatusFailed は通信・パース等で取得に失敗したことを表す。
	FetchStatusFailed FetchStatus = "failed"
)

// FetchResult は1アカウント分の取得結果。
// 失敗時も呼び出し元にはエラーを返さず、Err に原因を保持する。
type FetchResult struct {
	Account string
	Posts   []Post
	Err     error
}

// Status は取得結果の種別を返す。
func (r FetchResult) Status() FetchStatus {
	switch {
	case r.Err != nil:
		return FetchStatusFailed
	case len(r.Posts) == 0:
		return FetchStatusEmpty
	default:
		return FetchStatusOK
	}
}
