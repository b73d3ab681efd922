// Package model はドメインモデルを定義する。
package model

import "time"

// Feed は定期的に巡回するRSS/Atomフィードを表す。
type Feed struct {
	ID int64

	// URL はフィードドキュメントの取得先URL。
	URL string

	// Title はフィードの表示タイトル。パース成功時にフィード文書から更新される。
	Title string

	// RefreshInterval はこのフィード固有の巡回間隔。
	// nilの場合はグローバルデフォルト間隔を使用する。
	RefreshInterval *time.Duration

	// LastFetchAt は最後にフェッチに成功した日時。未フェッチの場合はnil。
	LastFetchAt *time.Time

	// LastError は直近のフェッチ/パース失敗の内容。成功サイクルでクリアされる。
	LastError string

	// NextFetchAt は次回フェッチ予定日時。ゼロ値（epoch）は即時フェッチ対象を意味する。
	NextFetchAt time.Time

	// Disabled は管理操作によって巡回を止められたフィードを示す。
	Disabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveInterval はフィードの実効巡回間隔を返す。
// フィード固有の間隔が未設定の場合はdefaultIntervalを返す。
func (f *Feed) EffectiveInterval(defaultInterval time.Duration) time.Duration {
	if f.RefreshInterval != nil && *f.RefreshInterval > 0 {
		return *f.RefreshInterval
	}
	return defaultInterval
}
