package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr from X-Real-IP or X-Forwarded-For,
// but only when the connection itself comes from a configured proxy.
// Everything downstream (the rate limiter, the request log) reads
// RemoteAddr, so a client hitting us directly cannot smuggle a forged
// address through a header.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	trusted := parseTrustedNets(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fromTrustedProxy(r.RemoteAddr, trusted) {
				if ip := clientIPFromHeaders(r); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseTrustedNets accepts CIDR notation and bare IPs; a bare IP becomes a
// /32 (or /128) network. Invalid entries are logged and skipped rather than
// failing startup.
func parseTrustedNets(specs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(spec); err == nil {
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(spec)
		if ip == nil {
			slog.Warn("ignoring invalid trusted proxy entry", "entry", spec)
			continue
		}
		mask := net.CIDRMask(128, 128)
		if ip.To4() != nil {
			mask = net.CIDRMask(32, 32)
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
	}
	return nets
}

// clientIPFromHeaders returns the client address a trusted proxy reported:
// X-Real-IP when present, otherwise the first hop of X-Forwarded-For. A
// present-but-unparsable X-Real-IP wins over the forwarded chain, yielding
// nil, so a half-broken proxy setup falls back to the socket address
// instead of an address we cannot verify.
func clientIPFromHeaders(r *http.Request) net.IP {
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return net.ParseIP(rip)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx > 0 {
			first = xff[:idx]
		}
		return net.ParseIP(strings.TrimSpace(first))
	}
	return nil
}

// fromTrustedProxy reports whether the connection's source address is inside
// one of the trusted networks. remoteAddr may be host:port or a bare IP.
func fromTrustedProxy(remoteAddr string, trusted []*net.IPNet) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
