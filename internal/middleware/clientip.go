package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ProxyTrust resolves the address of the caller. Forwarding headers are only
// read when the socket peer is inside one of the trusted prefixes; any other
// peer is identified by its own address.
type ProxyTrust struct {
	trusted []netip.Prefix
}

func NewProxyTrust(trusted []netip.Prefix) *ProxyTrust {
	return &ProxyTrust{trusted: trusted}
}

// Handler stores the resolved address on the request context for ClientIP.
func (p *ProxyTrust) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey{}, p.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Resolve walks X-Forwarded-For from the nearest hop outwards and returns the
// first address that is not a trusted proxy. X-Real-IP is consulted only when
// a trusted peer sent no X-Forwarded-For.
func (p *ProxyTrust) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !p.trusts(addr) {
		return peer
	}

	hops := forwardedHops(r.Header.Values("X-Forwarded-For"))
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(hops[i])
		if err != nil {
			return peer
		}
		if !p.trusts(hop) {
			return hop.Unmap().String()
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}

	return peer
}

func (p *ProxyTrust) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP identifies the caller for throttling and audit. Without
// ProxyTrust in the chain it is always the socket peer.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote)
	if err == nil && host != "" {
		return host
	}
	return remote
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if hop := strings.TrimSpace(part); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}
