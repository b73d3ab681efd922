package config

import "testing"

func TestParseSuppressionRules_EmptyInput(t *testing.T) {
	rules, err := ParseSuppressionRules("", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !rules.Empty() {
		t.Error("空の入力ではEmpty()がtrueを返すべき")
	}
}

func TestParseSuppressionRules_SkipsBlankLines(t *testing.T) {
	rules, err := ParseSuppressionRules("foo\n\n  \nbar", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rules.Title) != 2 {
		t.Errorf("Title patterns = %d, want 2", len(rules.Title))
	}
}

func TestParseSuppressionRules_InvalidRegex(t *testing.T) {
	_, err := ParseSuppressionRules("", "(unclosed", "")
	if err == nil {
		t.Fatal("不正な正規表現でエラーが返るべき")
	}
}

func TestSuppressionRules_MatchesTitle(t *testing.T) {
	rules, err := ParseSuppressionRules(`(?i)\b#short\b`, "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !rules.Matches("Weekly #short update", "", "") {
		t.Error("タイトルパターンにマッチすべき")
	}
	if !rules.Matches("Weekly #SHORT update", "", "") {
		t.Error("大文字小文字を無視してマッチすべき")
	}
	if rules.Matches("Weekly long update", "", "") {
		t.Error("マッチしないタイトルでfalseを返すべき")
	}
}

func TestSuppressionRules_MatchesSummary(t *testing.T) {
	rules, err := ParseSuppressionRules("", "sponsored content", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !rules.Matches("", "this is sponsored content", "") {
		t.Error("サマリーパターンにマッチすべき")
	}
	if rules.Matches("sponsored content", "", "") {
		t.Error("サマリーパターンはタイトルに適用されない")
	}
}

func TestSuppressionRules_MatchesURL(t *testing.T) {
	rules, err := ParseSuppressionRules("", "", `example\.com/ads/`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !rules.Matches("", "", "https://example.com/ads/123") {
		t.Error("URLパターンにマッチすべき")
	}
	if rules.Matches("", "", "https://example.com/news/123") {
		t.Error("マッチしないURLでfalseを返すべき")
	}
}

func TestSuppressionRules_AnyFieldMatchSuffices(t *testing.T) {
	rules, err := ParseSuppressionRules("title-pat", "summary-pat", "url-pat")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !rules.Matches("has title-pat here", "clean", "clean") {
		t.Error("タイトルのみのマッチで抑制されるべき")
	}
	if !rules.Matches("clean", "has summary-pat here", "clean") {
		t.Error("サマリーのみのマッチで抑制されるべき")
	}
	if !rules.Matches("clean", "clean", "has url-pat here") {
		t.Error("URLのみのマッチで抑制されるべき")
	}
	if rules.Matches("clean", "clean", "clean") {
		t.Error("全フィールドがクリーンならfalseを返すべき")
	}
}
