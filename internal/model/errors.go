// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// FailureKind は取り込みサイクル中の失敗分類を表す。
// すべてフィードスコープの非致命的エラーであり、デーモン自体は停止しない。
type FailureKind string

const (
	// FailureTimeout はネットワークタイムアウトによる失敗。
	FailureTimeout FailureKind = "network_timeout"
	// FailureConnect は接続確立の失敗。
	FailureConnect FailureKind = "network_connect"
	// FailureHTTPStatus は非成功HTTPステータスによる失敗。
	FailureHTTPStatus FailureKind = "http_status"
	// FailureParse はフィード文書のパース失敗。
	FailureParse FailureKind = "parse"
	// FailureStorage はデータベーストランザクション/IOの失敗。
	FailureStorage FailureKind = "storage"
)

// IngestError は取り込みサイクルの失敗を分類付きで表す。
// フィードのlast_errorに記録され、次回の巡回まで再試行されない。
type IngestError struct {
	Kind       FailureKind
	StatusCode int    // FailureHTTPStatusの場合のみ設定される
	Location   string // ステータス301のLocationヘッダ。恒久的な移転先URL
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *IngestError) Error() string {
	if e.Kind == FailureHTTPStatus {
		return fmt.Sprintf("[%s] HTTPステータス %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *IngestError) Unwrap() error {
	return e.Err
}

// NewTimeoutError はネットワークタイムアウトエラーを生成する。
func NewTimeoutError(err error) *IngestError {
	return &IngestError{Kind: FailureTimeout, Err: err}
}

// NewConnectError は接続失敗エラーを生成する。
func NewConnectError(err error) *IngestError {
	return &IngestError{Kind: FailureConnect, Err: err}
}

// NewHTTPStatusError は非成功HTTPステータスエラーを生成する。
func NewHTTPStatusError(statusCode int) *IngestError {
	return &IngestError{Kind: FailureHTTPStatus, StatusCode: statusCode}
}

// NewPermanentRedirectError はHTTP 301（恒久的な移転）を表すエラーを生成する。
// locationは移転先URL。Locationヘッダがないレスポンスの場合は空文字列。
// 取り込みサイクルはこのエラーを検出してフィードの保存URLを書き換える。
func NewPermanentRedirectError(location string) *IngestError {
	return &IngestError{Kind: FailureHTTPStatus, StatusCode: 301, Location: location}
}

// NewParseError はパース失敗エラーを生成する。
func NewParseError(err error) *IngestError {
	return &IngestError{Kind: FailureParse, Err: err}
}

// NewStorageError はストレージ失敗エラーを生成する。
func NewStorageError(err error) *IngestError {
	return &IngestError{Kind: FailureStorage, Err: err}
}

// KindOf はエラーからFailureKindを取り出す。
// IngestErrorでない場合はFailureStorageとして扱う（未分類の内部エラー）。
func KindOf(err error) FailureKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return FailureStorage
}
