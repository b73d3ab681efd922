// Package feed はRSS/Atomフィード文書の正規化を提供する。
package feed

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mbuesch/feedreaders/internal/model"
)

// Parser はフィード文書のバイト列を正規化された記事リストに変換する。
// gofeedによりRSS/Atomの両形式を透過的に扱う。
type Parser struct {
	parser *gofeed.Parser
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser() *Parser {
	return &Parser{parser: gofeed.NewParser()}
}

// Parse はフィード文書をパースし、フィードメタデータと記事リストを返す。
// 不正な文書はパース失敗（FailureParse）として返す。
// nowは公開日時が欠落している記事の代替日時として使用する。
func (p *Parser) Parse(data []byte, now time.Time) (*model.ParsedFeed, error) {
	parsed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, model.NewParseError(err)
	}

	result := &model.ParsedFeed{
		Title: parsed.Title,
		Items: make([]model.ParsedItem, 0, len(parsed.Items)),
	}

	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		result.Items = append(result.Items, normalizeItem(entry, now))
	}

	return result, nil
}

// normalizeItem はgofeedの記事をParsedItemに正規化する。
func normalizeItem(entry *gofeed.Item, now time.Time) model.ParsedItem {
	item := model.ParsedItem{
		GUID:    entry.GUID,
		Title:   entry.Title,
		Link:    entry.Link,
		Summary: entry.Description,
	}

	// 著者: 複数著者はカンマ区切りで連結する
	var authors []string
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	if len(authors) == 0 && entry.Author != nil && entry.Author.Name != "" {
		authors = append(authors, entry.Author.Name)
	}
	item.Author = strings.Join(authors, ", ")

	// 公開日時: published → updated → 取得日時の順にフォールバック
	switch {
	case entry.PublishedParsed != nil:
		item.PublishedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.PublishedAt = *entry.UpdatedParsed
	default:
		item.PublishedAt = now
	}

	// サマリー: description → content → メディア説明の順にフォールバック
	if strings.TrimSpace(item.Summary) == "" {
		item.Summary = entry.Content
	}
	if strings.TrimSpace(item.Summary) == "" {
		item.Summary = mediaDescription(entry)
	}

	// リンク欠落時、guidがURL形式ならリンクとして使用する
	if item.Link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
		item.Link = item.GUID
	}

	return item
}

// mediaDescription はMedia RSS拡張のdescription要素を取り出す。
// サマリーを持たない動画系フィードのためのフォールバック。
func mediaDescription(entry *gofeed.Item) string {
	media, ok := entry.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media["description"] {
		if ext.Value != "" {
			return ext.Value
		}
	}
	for _, group := range media["group"] {
		for _, desc := range group.Children["description"] {
			if desc.Value != "" {
				return desc.Value
			}
		}
	}
	return ""
}
