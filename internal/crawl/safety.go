package crawl

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckURLSafety rejects URLs that would let a crawl reach internal
// infrastructure: loopback, link-local, and private-range IP literals, plus
// the bare localhost hostname. Hostnames are not resolved; only literals are
// checked here.
func CheckURLSafety(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("refusing to crawl localhost")
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("refusing to crawl loopback address %s", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("refusing to crawl link-local address %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("refusing to crawl private address %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("refusing to crawl unspecified address %s", ip)
	}
	return nil
}
