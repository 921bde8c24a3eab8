package app

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCmd は tweetsense のルートコマンドを返す。
// サブコマンドを指定しない場合は start と同じ動作をする。
func NewRootCmd(w io.Writer) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "tweetsense",
		Short:         "暗号資産関連ツイートのセンチメント監視",
		Long:          "監視アカウントの投稿を定期取得してセンチメントを分類・保存し、ポジティブ比率が閾値を超えたキーワードを通知する。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), w, *opts)
		},
	}
	root.SetOut(w)

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.Debug, "debug", false, "デバッグログをテキスト形式で出力する")
	flags.StringVar(&opts.ConfigFile, "config", "", "読み込む環境ファイル（既定: .env があれば読み込む）")
	flags.StringArrayVar(&opts.Sets, "set", nil, "設定を KEY=VALUE 形式で上書きする（複数指定可）")
	flags.StringVar(&opts.Param, "param", "", "テスト用コマンドの任意引数")

	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "スケジューラとHTTPサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStart(cmd.Context(), w, *opts)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "ストアのスキーマを作成・更新する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), w, *opts)
			},
		},
		&cobra.Command{
			Use:   "healthcheck",
			Short: "起動中サーバーの /health を確認する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHealthcheck(cmd.Context(), *opts)
			},
		},
		&cobra.Command{
			Use:   "test-twitter",
			Short: "投稿取得を1回実行して結果を表示する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTestTwitter(cmd.Context(), w, *opts)
			},
		},
		&cobra.Command{
			Use:   "test-sentiment [text...]",
			Short: "テキストのセンチメントを分類して表示する",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTestSentiment(cmd.Context(), w, *opts, args)
			},
		},
		&cobra.Command{
			Use:   "test-store",
			Short: "キーワードごとの直近24時間のトレンドを表示する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTestStore(cmd.Context(), w, *opts)
			},
		},
		&cobra.Command{
			Use:   "test-notify",
			Short: "全チャネルにテスト通知を送信する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTestNotify(cmd.Context(), w, *opts)
			},
		},
	)

	return root
}
