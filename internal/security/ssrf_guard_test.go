package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSafeClient(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)

	if client == nil {
		t.Fatal("NewSafeClient() が nil を返した")
	}
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurl のTransportが設定されるべき")
	}
}

// httptestサーバーは127.0.0.1で起動するため接続は拒否される。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)
	resp, err := client.Get(ts.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("ループバック宛てのリクエストはエラーになるべき")
	}
}

func TestValidateURL(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開https", "https://feeds.bbci.co.uk/news/rss.xml", false},
		{"公開http", "http://example.com/feed", false},
		{"公開IP", "https://93.184.216.34/rss", false},
		{"空文字", "", true},
		{"ftpスキーム", "ftp://example.com/feed", true},
		{"fileスキーム", "file:///etc/passwd", true},
		{"ホストなし", "https:///feed", true},
		{"プライベートIP 10/8", "http://10.0.0.1/feed", true},
		{"プライベートIP 172.16/12", "http://172.16.5.4/feed", true},
		{"プライベートIP 192.168/16", "http://192.168.1.1/feed", true},
		{"ループバック", "http://127.0.0.1:8080/feed", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data", true},
		{"ゼロアドレス", "http://0.0.0.0/feed", true},
		{"CGNAT", "http://100.64.0.1/feed", true},
		{"IPv6ループバック", "http://[::1]/feed", true},
		{"IPv6ユニークローカル", "http://[fd00::1]/feed", true},
		{"localhost", "http://localhost/feed", true},
		{"LOCALHOST大文字", "http://LOCALHOST/feed", true},
		{"GCPメタデータ", "http://metadata.google.internal/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil {
				var blocked *BlockedURLError
				if !errors.As(err, &blocked) {
					t.Errorf("エラーは *BlockedURLError であるべき: %T", err)
				}
			}
		})
	}
}
