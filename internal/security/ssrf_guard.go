package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はリモートサービスのURLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は接続を拒否するネットワーク範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	// クラウドメタデータIP (169.254.169.254) を含む
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// NewGuardedClient はプライベートネットワーク宛ての接続を拒否するHTTPクライアントを生成する。
// 許可するポートは80、443とベースURLで明示されたポート。
// safeurlはDialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディングも防止される。
func NewGuardedClient(baseURL string, timeout time.Duration) (*http.Client, error) {
	port, err := ValidateBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	ports := []int{80, 443}
	if !slices.Contains(ports, int(port)) {
		ports = append(ports, int(port))
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client, nil
}

// ValidateBaseURL はリモートサービスのベースURLを静的に検証し、接続先ポートを返す。
// DNS解決は行わない。解決後のアドレスはNewGuardedClientのDialerで検証される。
func ValidateBaseURL(rawURL string) (uint16, error) {
	if rawURL == "" {
		return 0, fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(allowedSchemes, scheme) {
		return 0, fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}
	if parsed.User != nil {
		return 0, fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return 0, fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return 0, fmt.Errorf("blocked IP address: %s", addr)
		}
	} else if lower := strings.ToLower(host); lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return 0, fmt.Errorf("blocked host: %s", host)
	}

	return urlPort(parsed)
}

func urlPort(u *url.URL) (uint16, error) {
	raw := u.Port()
	if raw == "" {
		if strings.EqualFold(u.Scheme, "https") {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port: %s", raw)
	}
	return uint16(port), nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
