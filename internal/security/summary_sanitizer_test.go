package security

import (
	"strings"
	"testing"
)

func TestNewSummarySanitizer(t *testing.T) {
	s := NewSummarySanitizer()
	if s == nil {
		t.Fatal("NewSummarySanitizer() returned nil")
	}
}

func TestSanitize_RemovesScript(t *testing.T) {
	s := NewSummarySanitizer()

	input := `<p>hello</p><script>alert("xss")</script>`
	got := s.Sanitize(input)

	if strings.Contains(got, "<script") {
		t.Errorf("scriptタグが除去されていない: %q", got)
	}
	if !strings.Contains(got, "<p>hello</p>") {
		t.Errorf("許可タグpが保持されていない: %q", got)
	}
}

func TestSanitize_RemovesIframe(t *testing.T) {
	s := NewSummarySanitizer()

	got := s.Sanitize(`<iframe src="https://evil.example.com"></iframe><em>ok</em>`)

	if strings.Contains(got, "iframe") {
		t.Errorf("iframeタグが除去されていない: %q", got)
	}
	if !strings.Contains(got, "<em>ok</em>") {
		t.Errorf("許可タグemが保持されていない: %q", got)
	}
}

func TestSanitize_RemovesEventAttributes(t *testing.T) {
	s := NewSummarySanitizer()

	got := s.Sanitize(`<p onclick="alert(1)" onmouseover="steal()">text</p>`)

	if strings.Contains(got, "onclick") || strings.Contains(got, "onmouseover") {
		t.Errorf("on*イベント属性が除去されていない: %q", got)
	}
	if !strings.Contains(got, "text") {
		t.Errorf("テキスト内容が失われた: %q", got)
	}
}

func TestSanitize_KeepsAllowedElements(t *testing.T) {
	s := NewSummarySanitizer()

	tests := []struct {
		name  string
		input string
	}{
		{"段落と強調", "<p><strong>bold</strong> and <em>italic</em></p>"},
		{"リスト", "<ul><li>one</li><li>two</li></ul>"},
		{"コードブロック", "<pre><code>fmt.Println()</code></pre>"},
		{"引用", "<blockquote>quoted</blockquote>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.input {
				t.Errorf("Sanitize(%q) = %q, 許可タグは変更されないはず", tt.input, got)
			}
		})
	}
}

func TestSanitize_AddsRelToLinks(t *testing.T) {
	s := NewSummarySanitizer()

	got := s.Sanitize(`<a href="https://example.com/post">link</a>`)

	if !strings.Contains(got, `href="https://example.com/post"`) {
		t.Errorf("href属性が保持されていない: %q", got)
	}
	if !strings.Contains(got, "nofollow") {
		t.Errorf("rel=nofollowが付与されていない: %q", got)
	}
	if !strings.Contains(got, "noreferrer") {
		t.Errorf("rel=noreferrerが付与されていない: %q", got)
	}
}

func TestSanitize_RemovesJavascriptHref(t *testing.T) {
	s := NewSummarySanitizer()

	got := s.Sanitize(`<a href="javascript:alert(1)">click</a>`)

	if strings.Contains(got, "javascript:") {
		t.Errorf("javascript: スキームのhrefが除去されていない: %q", got)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	s := NewSummarySanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want \"\"", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewSummarySanitizer()

	input := `<p>text</p><script>bad()</script><a href="https://example.com">x</a>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)

	if once != twice {
		t.Errorf("サニタイズが冪等でない: once=%q twice=%q", once, twice)
	}
}
