package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizer はTelegramのHTMLパースモードで送るメッセージをサニタイズする。
// Telegram が解釈できるタグのみを残し、それ以外のタグは除去する。
type MessageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerの新しいインスタンスを生成する。
// 許可タグ: b, strong, i, em, u, s, code, pre, a(href, httpsのみ)
func NewMessageSanitizer() *MessageSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "s", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.AllowRelativeURLs(false)

	return &MessageSanitizer{policy: p}
}

// Sanitize はメッセージをサニタイズして返す。
func (s *MessageSanitizer) Sanitize(message string) string {
	return s.policy.Sanitize(message)
}
