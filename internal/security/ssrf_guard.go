// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はフィードソースへの外向きリクエストを安全に行うための機能を定義する。
type SSRFGuardService interface {
	// NewSafeClient は内部ネットワーク宛ての接続を拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client
	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
}

// BlockedURLError はURLが外向きリクエストの対象として許可されないことを表す。
type BlockedURLError struct {
	URL    string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *BlockedURLError) Error() string {
	return fmt.Sprintf("blocked url %q: %s", e.URL, e.Reason)
}

var (
	allowedSchemes = []string{"http", "https"}
	allowedPorts   = []int{80, 443}

	// blockedHostnames は名前だけで内部宛てと判断できるホスト。
	blockedHostnames = []string{"localhost", "localhost.localdomain", "metadata.google.internal"}

	// blockedNetworks はプライベート、ループバック、リンクローカル（メタデータIPを含む）の範囲。
	blockedNetworks = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"100.64.0.0/10",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	)
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// SSRFGuard はSSRFGuardServiceの実装。
type SSRFGuard struct{}

// NewSSRFGuard はSSRFGuardの新しいインスタンスを生成する。
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// 接続時のDialerフックでDNS解決後のIPも検証されるため、
// DNS再バインディングによる内部アクセスも拒否される。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はスキーム、ホスト名、IPリテラルを検証する。
// 違反している場合は*BlockedURLErrorを返す。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &BlockedURLError{URL: rawURL, Reason: "empty url"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &BlockedURLError{URL: rawURL, Reason: err.Error()}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(allowedSchemes, scheme) {
		return &BlockedURLError{URL: rawURL, Reason: "scheme " + scheme + " is not allowed"}
	}

	host := parsed.Hostname()
	if host == "" {
		return &BlockedURLError{URL: rawURL, Reason: "empty host"}
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return &BlockedURLError{URL: rawURL, Reason: "address " + ip.String() + " is internal"}
			}
		}
		return nil
	}

	if slices.Contains(blockedHostnames, strings.ToLower(host)) {
		return &BlockedURLError{URL: rawURL, Reason: "host " + host + " is internal"}
	}

	return nil
}

// compile-time interface check
var _ SSRFGuardService = (*SSRFGuard)(nil)
