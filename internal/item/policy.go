package item

import (
	"github.com/mbuesch/feedreaders/internal/config"
	"github.com/mbuesch/feedreaders/internal/feed"
	"github.com/mbuesch/feedreaders/internal/model"
)

// HighlightPolicy は新規/更新記事へのハイライト適用規則を保持する。
// 抑制ルール集合と、更新記事をハイライト対象外とするフラグ、
// 抑制記事を即座に既読化するauto-seenフラグからなる。
type HighlightPolicy struct {
	Rules            *config.SuppressionRules
	HighlightNewOnly bool
	AutoSeen         bool
}

// Apply は新規または更新された記事にハイライトポリシーを適用する。
// 抑制ルールの評価はタイトル、サマリーのプレーンテキスト、リンクURLに対して行う。
// 判定順序:
//  1. いずれかの抑制パターンにマッチした場合、記事はハイライトされない。
//     auto-seenが有効ならその場で既読になる。
//  2. マッチしない場合はハイライトする。ただし更新記事（新規でない）は
//     HighlightNewOnlyが有効なら現状のフラグを維持する。
//
// ハイライトが発生した場合、閲覧者の確認済みフラグはリセットされる
// （highlighted ⇒ 最後のハイライト以降は未確認、という不変条件を保つ）。
//
// 戻り値はポリシーが値を決定したフラグを示す。決定しなかったフラグは
// 永続化時に書き込まず、データベース上の現在値を維持する。
func (p *HighlightPolicy) Apply(it *model.Item, isNew bool) (seenSet, highlightedSet bool) {
	if p.Rules != nil && p.Rules.Matches(it.Title, feed.PlainText(it.Summary), it.Link) {
		it.Highlighted = false
		if p.AutoSeen {
			it.Seen = true
			return true, true
		}
		return false, true
	}

	if !isNew && p.HighlightNewOnly {
		// 更新のみの記事はそのまま
		return false, false
	}

	it.Highlighted = true
	it.Seen = false
	return true, true
}
