package security

import (
	"strings"
	"testing"
)

func TestSanitize_KeepsTelegramTags(t *testing.T) {
	s := NewMessageSanitizer()

	tests := []string{
		"<b>BTC</b>",
		"<i>ETH</i>",
		"<code>SOL</code>",
		"<pre>12/15</pre>",
	}
	for _, in := range tests {
		if got := s.Sanitize(in); got != in {
			t.Errorf("Sanitize(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestSanitize_RemovesUnsupported(t *testing.T) {
	s := NewMessageSanitizer()

	tests := []struct {
		in         string
		notContain string
	}{
		{"<script>alert(1)</script>BTC", "<script"},
		{"<p>BTC</p>", "<p>"},
		{`<b onclick="x()">BTC</b>`, "onclick"},
		{`<a href="javascript:alert(1)">x</a>`, "javascript:"},
		{`<img src="https://example.com/a.png">`, "<img"},
	}
	for _, tt := range tests {
		got := s.Sanitize(tt.in)
		if strings.Contains(got, tt.notContain) {
			t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.in, got, tt.notContain)
		}
	}
}

func TestSanitize_KeepsHTTPSLinks(t *testing.T) {
	s := NewMessageSanitizer()
	got := s.Sanitize(`<a href="https://example.com/btc">chart</a>`)
	if !strings.Contains(got, `href="https://example.com/btc"`) {
		t.Errorf("https link removed: %q", got)
	}
}

func TestSanitize_PlainAlertText(t *testing.T) {
	s := NewMessageSanitizer()
	msg := "🔥 Positive sentiment alert for BTC! 12/15 recent tweets (80.0%) are positive. Consider potential investment opportunities."
	if got := s.Sanitize(msg); got != msg {
		t.Errorf("Sanitize changed plain text: %q", got)
	}
}
