package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mbuesch/feedreaders/internal/model"
	"github.com/mbuesch/feedreaders/internal/security"
)

// FetchResult はフィードドキュメントの取得結果。
type FetchResult struct {
	// Body は取得したフィードドキュメントのバイト列。
	Body []byte

	// Fingerprint はBodyのsha256ハッシュ（16進文字列）。
	// 前回取得時と同一の場合、パース以降の処理を省略できる。
	Fingerprint string

	StatusCode int
	Duration   time.Duration
}

// FetcherService は1回のフィード取得を実行するインターフェース。
type FetcherService interface {
	// Fetch は指定URLのフィードドキュメントを1回取得する。
	// 内部でのリトライは行わない。失敗は分類付きのIngestErrorとして返す。
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// Fetcher はSSRF防止付きHTTPクライアントでフィードを取得する。
// ホスト単位のレート制限を適用し、タイムアウトと最大サイズを強制する。
type Fetcher struct {
	ssrfGuard   security.SSRFGuardService
	hostLimiter *HostLimiter
	timeout     time.Duration
	maxBodySize int64
}

var _ FetcherService = (*Fetcher)(nil)

// userAgent はフィード取得時のUser-Agentヘッダ。
const userAgent = "feedreaders/1.0 (RSS/Atom aggregation daemon)"

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	ssrfGuard security.SSRFGuardService,
	hostLimiter *HostLimiter,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	return &Fetcher{
		ssrfGuard:   ssrfGuard,
		hostLimiter: hostLimiter,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLのフィードドキュメントを1回取得する。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, model.NewConnectError(fmt.Errorf("URL検証に失敗: %w", err))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, model.NewConnectError(fmt.Errorf("URLのパースに失敗: %w", err))
	}

	if err := f.hostLimiter.Wait(ctx, parsed.Hostname()); err != nil {
		return nil, model.NewConnectError(fmt.Errorf("ホストレート制限の待機が中断されました: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewConnectError(fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	start := time.Now()

	client := f.ssrfGuard.NewSafeClient(f.timeout)

	// HTTP 301はフィードURL書き換えの契機となるため、自動追従させずに
	// レスポンスをそのまま受け取る。一時的なリダイレクト（302等）は追従する。
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if req.Response != nil && req.Response.StatusCode == http.StatusMovedPermanently {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return fmt.Errorf("リダイレクトが多すぎます")
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMovedPermanently {
		return nil, model.NewPermanentRedirectError(resp.Header.Get("Location"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewHTTPStatusError(resp.StatusCode)
	}

	// 最大サイズ制限付きで読み込む
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	sum := sha256.Sum256(body)

	return &FetchResult{
		Body:        body,
		Fingerprint: hex.EncodeToString(sum[:]),
		StatusCode:  resp.StatusCode,
		Duration:    time.Since(start),
	}, nil
}

// classifyTransportError はトランスポート層のエラーをタイムアウトと
// 接続失敗に分類する。
func classifyTransportError(err error) *model.IngestError {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewTimeoutError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewTimeoutError(err)
	}

	return model.NewConnectError(err)
}
