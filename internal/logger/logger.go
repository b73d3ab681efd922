// Package logger はデーモン全体で使うJSON構造化ログの初期化を提供する。
//
// 取り込みサイクルのログはフィードIDやサイクルIDを属性として持ち、
// ログコレクタで集計できるようすべてJSON Lines形式で出力される。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup は指定writerに書き込むJSON構造化ロガーを生成する。
// ログレベルはInfo。Debugレベルの出力は行わない。
func Setup(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefault はSetupのロガーをプロセス全体のデフォルトに設定する。
// wがnilの場合は標準出力に書く。コンテナ運用では標準出力のJSON Linesを
// そのままログコレクタに渡す想定。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
