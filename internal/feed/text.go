package feed

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText はHTML断片からタグを取り除いたプレーンテキストを返す。
// 抑制ルールの正規表現はマークアップではなく本文に対して評価するために使用する。
// scriptとstyleの中身は本文ではないため捨てる。
func PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOFを含む。断片の末尾に達したら終了する。
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isNonContentTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isNonContentTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isNonContentTag(name string) bool {
	return name == "script" || name == "style"
}
