package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ログ出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options はロガーの出力形式とレベルを指定する。
type Options struct {
	Format string // "json"（既定）または "text"
	Level  slog.Level
}

// ParseLevel は文字列のログレベルを slog.Level に変換する。未知の値は Info を返す。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup は構造化ログ出力のslog.Loggerを生成して返す。
// 既定はJSON出力。Format が "text" の場合は tint による人間向けテキスト出力になる。
func Setup(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: opts.Level,
		})
	}
	return slog.New(handler)
}

// SetupDefault は構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	logger := Setup(w, opts)
	slog.SetDefault(logger)
	return logger
}

// isTerminal は出力先が文字デバイス（端末）かどうかを判定する。
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
