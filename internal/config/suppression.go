package config

import (
	"fmt"
	"regexp"
	"strings"
)

// SuppressionRules はハイライト抑制の正規表現ルール集合を保持する。
// タイトル、サマリー、URLそれぞれに対する順序付きパターンリストからなり、
// デーモン実行中は読み取り専用として扱う。
type SuppressionRules struct {
	Title   []*regexp.Regexp
	Summary []*regexp.Regexp
	URL     []*regexp.Regexp
}

// ParseSuppressionRules は改行区切りのパターンリストから抑制ルールを構築する。
// 空行は無視する。不正な正規表現は起動時エラーとして返す。
func ParseSuppressionRules(titlePatterns, summaryPatterns, urlPatterns string) (*SuppressionRules, error) {
	rules := &SuppressionRules{}

	var err error
	if rules.Title, err = compilePatterns("SUPPRESS_TITLE", titlePatterns); err != nil {
		return nil, err
	}
	if rules.Summary, err = compilePatterns("SUPPRESS_SUMMARY", summaryPatterns); err != nil {
		return nil, err
	}
	if rules.URL, err = compilePatterns("SUPPRESS_URL", urlPatterns); err != nil {
		return nil, err
	}

	return rules, nil
}

// Matches はタイトル、サマリー（プレーンテキスト）、URLのいずれかが
// いずれかのパターンにマッチするかを判定する。
func (r *SuppressionRules) Matches(title, summaryText, url string) bool {
	for _, re := range r.Title {
		if re.MatchString(title) {
			return true
		}
	}
	for _, re := range r.Summary {
		if re.MatchString(summaryText) {
			return true
		}
	}
	for _, re := range r.URL {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Empty はルールが1つも設定されていないかを返す。
func (r *SuppressionRules) Empty() bool {
	return len(r.Title) == 0 && len(r.Summary) == 0 && len(r.URL) == 0
}

// compilePatterns は改行区切りのパターン文字列を正規表現リストにコンパイルする。
func compilePatterns(name, patterns string) ([]*regexp.Regexp, error) {
	var compiled []*regexp.Regexp
	for _, line := range strings.Split(patterns, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid regex %q: %w", name, line, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
