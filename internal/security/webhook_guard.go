// Package security はアラート送信先に関するセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はWebhook送信先として許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// allowedPorts はWebhook送信先として許可されるポート。
var allowedPorts = []int{80, 443}

// blockedHostnames はDNS解決前に拒否するホスト名。
var blockedHostnames = []string{
	"localhost",
	"metadata.google.internal",
}

// WebhookGuard は外部Webhookへの送信を安全に行うためのガード。
//
// 接続時の検証（DNS解決後のIP、スキーム、ポート）は safeurl のクライアントが行う。
// ValidateURL は起動時に設定ミスを検出するための事前チェックで、
// URLだけで判定できるものに限る。
type WebhookGuard struct{}

// NewWebhookGuard はWebhookGuardの新しいインスタンスを生成する。
func NewWebhookGuard() *WebhookGuard {
	return &WebhookGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// プライベートIP、ループバック、リンクローカル宛ての接続は
// safeurl によりDNS解決後に拒否される。
func (g *WebhookGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はWebhook URLを起動時に検証する。
func (g *WebhookGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(allowedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if port := parsed.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || !slices.Contains(allowedPorts, n) {
			return fmt.Errorf("disallowed port: %s (allowed: %v)", port, allowedPorts)
		}
	}

	// IPリテラルは接続を待たずに拒否する
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	if slices.Contains(blockedHostnames, strings.TrimSuffix(strings.ToLower(host), ".")) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}
