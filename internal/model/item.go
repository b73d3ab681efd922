// Package model はドメインモデルを定義する。
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Item はフィードから取得した記事を表す。
type Item struct {
	ID     int64
	FeedID int64

	// GUID はフィード内で一意な記事の識別子。
	// フィードがguidを提供しない場合はFallbackGUIDによる決定的な代替値を使用する。
	GUID string

	Title   string
	Summary string // サニタイズ済みHTML
	Link    string
	Author  string

	// PublishedAt は記事の公開日時。フィードが提供しない場合は取得日時を代用する。
	PublishedAt time.Time

	// FirstSeenAt はこの記事を初めて観測した日時。以後変化しない。
	FirstSeenAt time.Time

	// LastUpdatedAt は記事内容が最後に変化した日時。常にFirstSeenAt以上。
	LastUpdatedAt time.Time

	// Seen は閲覧者が記事を確認済みであることを示す。
	// 取り込み側はauto-seenポリシー適用時のみ設定し、それ以外は表示層が設定する。
	Seen bool

	// Highlighted は新着/更新として視覚的に目立たせるべき記事を示す。
	Highlighted bool
}

// ParsedFeed はパーサーが正規化したフィード文書を表す。
type ParsedFeed struct {
	Title string
	Items []ParsedItem
}

// ParsedItem はフィード文書から正規化された未保存の記事データを表す。
type ParsedItem struct {
	GUID        string
	Title       string
	Summary     string // 未サニタイズ
	Link        string
	Author      string
	PublishedAt time.Time
}

// FallbackGUID はguidを持たない記事の決定的な代替識別子を計算する。
// link、title、公開日時から導出するため、同一記事は常に同一のguidを得る。
func FallbackGUID(link, title string, publishedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(link))
	h.Write([]byte{'|'})
	h.Write([]byte(title))
	h.Write([]byte{'|'})
	h.Write([]byte(publishedAt.UTC().Format(time.RFC3339)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Identity は記事の実効的な識別子を返す。
// guidが空の場合はFallbackGUIDを返す。
func (p *ParsedItem) Identity() string {
	if p.GUID != "" {
		return p.GUID
	}
	return FallbackGUID(p.Link, p.Title, p.PublishedAt)
}
