package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() see through the reverse proxies listed in
// prefixes. Rate limiting and the audit log both key on the client address,
// so an untrusted X-Forwarded-For must never be believed.
func TrustedProxies(e *echo.Echo, prefixes []string) {
	e.IPExtractor = ClientIPExtractor(parsePrefixes(prefixes))
}

// ClientIPExtractor returns the client address of a request. Forwarding
// headers count only when the peer is a trusted proxy; X-Forwarded-For is
// walked right to left and the first untrusted hop wins.
func ClientIPExtractor(trusted []netip.Prefix) echo.IPExtractor {
	return func(req *http.Request) string {
		peer := peerAddr(req.RemoteAddr)
		if !isTrusted(peer, trusted) {
			return peer
		}

		if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop != "" && !isTrusted(hop, trusted) {
					return hop
				}
			}
			if first := strings.TrimSpace(hops[0]); first != "" {
				return first
			}
		}

		if realIP := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); realIP != "" {
			return realIP
		}
		return peer
	}
}

func parsePrefixes(values []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy prefix", slog.String("prefix", v))
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes
}

// peerAddr strips the port from a RemoteAddr.
func peerAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(addr string, trusted []netip.Prefix) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
