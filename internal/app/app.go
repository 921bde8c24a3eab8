// Package app はコマンドラインの解析、設定の読み込み、依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hitoshi/tweetsense/internal/config"
	"github.com/hitoshi/tweetsense/internal/logger"
)

// Options はすべてのサブコマンドに共通するフラグの値。
type Options struct {
	// Debug はデバッグログをテキスト形式で出力する。
	Debug bool
	// ConfigFile は読み込む環境ファイルのパス。空の場合は .env を任意で読み込む。
	ConfigFile string
	// Sets は "KEY=VALUE" 形式の設定上書き。
	Sets []string
	// Param はテスト用サブコマンドの任意引数。
	Param string
}

// Init はアプリケーションの初期化を行う。
// 環境ファイルと上書き指定を反映してからConfigを読み込み、構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, opts Options) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, logger.Options{Format: logger.FormatJSON, Level: slog.LevelInfo})

	// 2. 環境ファイルと上書き指定を反映する
	if err := applyEnv(opts); err != nil {
		return nil, nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Error("設定の読み込みに失敗しました", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定に従ってログを再構成する
	logOpts := logger.Options{Format: cfg.LogFormat, Level: logger.ParseLevel(cfg.LogLevel)}
	if opts.Debug {
		logOpts = logger.Options{Format: logger.FormatText, Level: slog.LevelDebug}
	}
	log = logger.SetupDefault(w, logOpts)

	return cfg, log, nil
}

// applyEnv は環境ファイルと --set の指定を環境変数に反映する。
func applyEnv(opts Options) error {
	path, explicit := config.DefaultEnvFile, false
	if opts.ConfigFile != "" {
		path, explicit = opts.ConfigFile, true
	}
	if err := config.LoadEnvFile(path, explicit); err != nil {
		return err
	}
	return config.ApplyParams(opts.Sets)
}

// Execute はコマンドライン引数を解析して対応するサブコマンドを実行する。
// argsにはos.Args[1:]を渡す。
func Execute(ctx context.Context, w io.Writer, args []string) error {
	root := NewRootCmd(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
