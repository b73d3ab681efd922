package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSSRFGuard(t *testing.T) {
	guard := NewSSRFGuard()
	if guard == nil {
		t.Fatal("NewSSRFGuard() returned nil")
	}
}

func TestNewSafeClient(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
}

func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
// safeurlはnet.DialerのControlフックでIPアドレス検証を行うため、
// Transportが標準のhttp.DefaultTransportではないことを確認する。
func TestNewSafeClientHasTransport(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバックへのリクエストをブロックすることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected loopback request to be blocked")
	}
}

func TestValidateURL_ValidURLs(t *testing.T) {
	guard := NewSSRFGuard()

	valid := []string{
		"https://example.com/feed.xml",
		"http://blog.example.org/rss",
		"https://example.com:443/atom.xml",
	}

	for _, u := range valid {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURL_BlockedURLs(t *testing.T) {
	guard := NewSSRFGuard()

	blocked := []struct {
		name string
		url  string
	}{
		{"空URL", ""},
		{"不正なスキーム", "ftp://example.com/feed.xml"},
		{"fileスキーム", "file:///etc/passwd"},
		{"localhost", "http://localhost/feed.xml"},
		{"ループバックIP", "http://127.0.0.1/feed.xml"},
		{"プライベートIP", "http://192.168.1.1/feed.xml"},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data"},
		{"IPv6ループバック", "http://[::1]/feed.xml"},
	}

	for _, tt := range blocked {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", tt.url)
			}
		})
	}
}
