package common

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ProxyTrust resolves the originating client address. Forwarding headers are
// honoured only when the connection peer is one of the trusted proxies.
type ProxyTrust struct {
	trusted []netip.Prefix
}

// NewProxyTrust parses trusted proxy addresses or CIDR ranges.
// An empty list trusts nobody and every request is keyed on its peer.
func NewProxyTrust(proxies []string) (*ProxyTrust, error) {
	p := &ProxyTrust{}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			p.trusted = append(p.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", raw, err)
		}
		p.trusted = append(p.trusted, prefix.Masked())
	}
	return p, nil
}

func (p *ProxyTrust) isTrusted(ip string) bool {
	if p == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve walks X-Forwarded-For from the nearest hop and returns the first
// address that is not a trusted proxy. Untrusted peers are returned as is.
func (p *ProxyTrust) Resolve(r *http.Request) string {
	peer := PeerIP(r)
	if !p.isTrusted(peer) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !p.isTrusted(hop) {
				return hop
			}
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return peer
}

// Middleware stores the resolved client address on the request context.
func (p *ProxyTrust) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey{}, p.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PeerIP returns the host of the connection peer.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the address resolved by ProxyTrust.Middleware, or the
// connection peer when the request did not pass through it.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return PeerIP(r)
}
