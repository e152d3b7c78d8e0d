package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrForbiddenAddress 表示目标解析到了非公网地址（回环、内网、链路本地、元数据等）。
var ErrForbiddenAddress = errors.New("destination address is not allowed")

// maxRedirects 限制用户提交的地址最多跳转几次。
const maxRedirects = 5

var blockedNets = mustCIDRs(
	"0.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"192.0.0.0/24",
	"198.18.0.0/15",
	"240.0.0.0/4",
	"64:ff9b::/96", // NAT64
	"fc00::/7",
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// IsPublicIP 判断 ip 是否为可以从服务端访问的公网地址。
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return false
	}
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}

// dialControl 在建立连接前检查已解析的地址，DNS 重绑定和跳转后的地址同样会经过这里。
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if !IsPublicIP(net.ParseIP(host)) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
	}
	return nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: redirect to %s", ErrForbiddenAddress, req.URL.Scheme)
	}
	if ip := net.ParseIP(req.URL.Hostname()); ip != nil && !IsPublicIP(ip) {
		return fmt.Errorf("%w: redirect to %s", ErrForbiddenAddress, ip)
	}
	return nil
}

// WithPublicOnly 让客户端只连接公网地址，用于抓取用户提交的 URL。
// 不走代理，每次跳转都重新校验。
func WithPublicOnly() ClientOption {
	return func(c *Client) {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second, Control: dialControl}
		transport := &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
		c.httpClient = &http.Client{
			Timeout:       c.httpClient.Timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		}
	}
}
