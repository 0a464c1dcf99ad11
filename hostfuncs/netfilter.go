package hostfuncs

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// NetfilterResult is the verdict on an outbound address.
type NetfilterResult struct {
	// Reason explains a refusal.
	Reason string `json:"reason,omitempty"`

	// ResolvedIP is the address a connection should be pinned to, if known.
	ResolvedIP string `json:"resolved_ip,omitempty"`

	// Allowed reports whether a connection may be made.
	Allowed bool `json:"allowed"`
}

// NetfilterOption configures ValidateAddress.
type NetfilterOption func(*netfilterConfig)

type netfilterConfig struct {
	lookup       func(ctx context.Context, host string) ([]netip.Addr, error)
	allowlist    []string
	blocklist    []string
	allowPrivate bool
	resolveDNS   bool
}

func defaultNetfilterConfig() netfilterConfig {
	return netfilterConfig{
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
		resolveDNS: true,
	}
}

// WithAllowlist accepts hosts, "*.suffix" wildcards or CIDRs that skip
// every other check.
func WithAllowlist(patterns ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowlist = patterns
	}
}

// WithBlocklist rejects hosts, "*.suffix" wildcards or CIDRs. The
// blocklist wins over the allowlist.
func WithBlocklist(patterns ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blocklist = patterns
	}
}

// WithAllowPrivate permits private and loopback addresses. Link-local
// addresses stay blocked; they host cloud metadata endpoints.
func WithAllowPrivate(allow bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowPrivate = allow
	}
}

// WithResolveDNS controls whether hostnames are resolved and every address
// checked. Without resolution only literal IPs are filtered.
func WithResolveDNS(resolve bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.resolveDNS = resolve
	}
}

// ValidateAddress decides whether an outbound connection to address
// ("host", "host:port" or an IP literal) is allowed. A hostname is refused
// if any address it resolves to is refused.
//
// SECURITY CRITICAL: call before every outbound connection a guest asked for.
func ValidateAddress(ctx context.Context, address string, opts ...NetfilterOption) NetfilterResult {
	cfg := defaultNetfilterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	host, err := splitHost(address)
	if err != nil {
		return NetfilterResult{Reason: "invalid address format: " + err.Error()}
	}

	literal, isIP := parseIP(host)
	for _, pattern := range cfg.blocklist {
		if matchesPattern(host, literal, pattern) {
			return NetfilterResult{Reason: "address in blocklist"}
		}
	}
	for _, pattern := range cfg.allowlist {
		if matchesPattern(host, literal, pattern) {
			res := NetfilterResult{Allowed: true}
			if isIP {
				res.ResolvedIP = literal.String()
			}
			return res
		}
	}

	if isIP {
		return cfg.check(host, literal)
	}
	if !cfg.resolveDNS {
		return NetfilterResult{Allowed: true}
	}

	addrs, err := cfg.lookup(ctx, host)
	if err != nil {
		return NetfilterResult{Reason: "DNS resolution failed: " + err.Error()}
	}
	if len(addrs) == 0 {
		return NetfilterResult{Reason: "DNS resolution returned no addresses"}
	}
	for _, addr := range addrs {
		if res := cfg.check(host, addr.Unmap()); !res.Allowed {
			return res
		}
	}
	return NetfilterResult{Allowed: true, ResolvedIP: addrs[0].Unmap().String()}
}

// check applies the blocklist CIDRs and address class rules to one address.
func (c netfilterConfig) check(host string, addr netip.Addr) NetfilterResult {
	for _, pattern := range c.blocklist {
		if matchesPattern(host, addr, pattern) {
			return NetfilterResult{Reason: "address in blocklist"}
		}
	}
	if reason := c.classify(addr); reason != "" {
		return NetfilterResult{Reason: reason}
	}
	return NetfilterResult{Allowed: true, ResolvedIP: addr.String()}
}

func (c netfilterConfig) classify(addr netip.Addr) string {
	switch {
	case addr.IsUnspecified():
		return "unspecified address blocked"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address blocked"
	case addr.IsMulticast():
		return "multicast address blocked"
	case !c.allowPrivate && addr.IsLoopback():
		return "localhost/loopback address blocked"
	case !c.allowPrivate && addr.IsPrivate():
		return "private address blocked (RFC 1918)"
	}
	return ""
}

// splitHost strips an optional port. Bare IPv6 literals are accepted.
func splitHost(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty address")
	}
	if _, err := netip.ParseAddr(strings.Trim(address, "[]")); err == nil {
		return strings.Trim(address, "[]"), nil
	}
	if !strings.Contains(address, ":") {
		return address, nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", fmt.Errorf("missing host in %q", address)
	}
	return host, nil
}

func parseIP(host string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// matchesPattern reports whether host (or its address, when valid) matches
// an exact name, a "*.suffix" wildcard or a CIDR.
func matchesPattern(host string, addr netip.Addr, pattern string) bool {
	if strings.EqualFold(host, pattern) {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(suffix))
	}
	if !addr.IsValid() {
		return false
	}
	if prefix, err := netip.ParsePrefix(pattern); err == nil {
		return prefix.Contains(addr)
	}
	if other, err := netip.ParseAddr(pattern); err == nil {
		return other.Unmap() == addr
	}
	return false
}
