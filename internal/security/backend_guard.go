// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// BackendGuardService はスクレイパーバックエンド接続のSSRF防止インターフェース。
// バックエンドURLは運用者が環境変数で設定するため、起動時の検証と
// リクエスト実行時のIP検証の両方で使用される。
type BackendGuardService interface {
	// ValidateURL は設定されたバックエンドURLの安全性を事前に検証する。
	ValidateURL(rawURL string) error

	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされる。
	// DNS再バインディング攻撃への対策も有効化される。
	// 運用者がプライベートネットワーク上のバックエンドを設定した場合のみ、
	// allowPrivateでブロックを解除できる。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// allowedSchemes はバックエンドURLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。safeurlはnet.Dialerレベルで
// DNS解決後のIPアドレスも検証するため、DNS再バインディング攻撃にも対応する。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// privateAllowedCIDRs はallowPrivate有効時にsafeurlへ渡す許可リスト。
// safeurlの許可リストは排他的（リスト外のIPを拒否する）ため、
// プライベート範囲だけでなく全域を含める必要がある。許可リストは
// 組み込みのブロックリストより先に評価されるので、これにより
// プライベートIPへの接続が通るようになる。
var privateAllowedCIDRs = []string{
	"0.0.0.0/0",
	"::/0",
}

// backendGuard はBackendGuardServiceの実装。
// バックエンドが標準ポート以外で稼働する構成のため、設定URLの
// ポートを許可リストに加える。
// allowPrivateが有効な場合、プライベートIP・ループバックへの接続を
// 許可する。Docker Compose等でバックエンドが内部ネットワークに
// 配置される構成向けで、SCRAPER_ALLOW_PRIVATE環境変数で制御する。
type backendGuard struct {
	allowedPorts []int
	allowPrivate bool
}

// NewBackendGuard はBackendGuardServiceの新しいインスタンスを生成する。
// 80/443に加えてextraPortsで指定されたポートへの接続を許可する。
func NewBackendGuard(extraPorts ...int) *backendGuard {
	ports := []int{80, 443}
	for _, p := range extraPorts {
		if p > 0 && p != 80 && p != 443 {
			ports = append(ports, p)
		}
	}
	return &backendGuard{allowedPorts: ports}
}

// NewBackendGuardForURL はバックエンドURLのポートを許可するガードを生成する。
// URLが不正な場合でもガード自体は生成し、検証はValidateURLに委ねる。
// allowPrivateはポート許可と同様に運用者の設定を反映するもので、
// 有効にすると設定済みバックエンドのプライベートIPを許可する。
func NewBackendGuardForURL(rawURL string, allowPrivate bool) *backendGuard {
	guard := NewBackendGuard()
	if parsed, err := url.Parse(rawURL); err == nil {
		if port, err := strconv.Atoi(parsed.Port()); err == nil {
			guard = NewBackendGuard(port)
		}
	}
	guard.allowPrivate = allowPrivate
	return guard
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlの設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//   - メタデータIPアドレス (169.254.169.254)
//
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証する。
//
// allowPrivateが有効な場合はCIDR許可リストを設定する。safeurlの
// Dialerは許可リストをブロックリストより先に評価するため、
// プライベート範囲を含む許可リストで内部ネットワークの
// バックエンドへの接続が通るようになる。このクライアントは
// 設定済みのバックエンドURLとの通信にのみ使用される。
func (g *backendGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	ports := make([]int, len(g.allowedPorts))
	copy(ports, g.allowedPorts)

	builder := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...)
	if g.allowPrivate {
		builder = builder.SetAllowedIPsCIDR(privateAllowedCIDRs...)
	}

	wrappedClient := safeurl.Client(builder.Build())
	return wrappedClient.Client
}

// ValidateURL はURLの安全性を事前に検証する。DNS解決を伴わない静的検証であり、
// 起動時のバックエンドURL検証として使用する。DNS再バインディング攻撃は
// NewSafeClientが生成するクライアント側のDialer検証で防止される。
func (g *backendGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// allowPrivate有効時はIP・ホスト名のブロック判定を行わない。
	// スキームとポートの検証は引き続き適用される。
	if g.allowPrivate {
		return nil
	}

	// IPアドレスの場合: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
