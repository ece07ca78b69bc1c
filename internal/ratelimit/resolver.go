package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	scopeInternal = "network:internal"
	scopeExternal = "network:external"
)

// Resolver maps a destination endpoint to its rate-limit scope. Resolution
// order: explicit per-endpoint override, then internal/external network
// classification, then the global default. Internal endpoints get the
// configured upgrade multiplier applied to the base rate.
type Resolver struct {
	defaultPerMinute  int
	upgradeMultiplier int
	overrides         map[string]int
	internalNets      []netip.Prefix
}

func NewResolver(defaultPerMinute int, upgradeMultiplier int, overrides map[string]int, internalCIDRs []string) (*Resolver, error) {
	if defaultPerMinute <= 0 {
		return nil, fmt.Errorf("default rate limit must be positive, got %d", defaultPerMinute)
	}
	if upgradeMultiplier < 1 {
		upgradeMultiplier = 1
	}

	normalized := make(map[string]int, len(overrides))
	for key, limit := range overrides {
		if limit <= 0 {
			return nil, fmt.Errorf("rate limit override for %q must be positive, got %d", key, limit)
		}
		normalized[strings.ToLower(strings.TrimSpace(key))] = limit
	}

	nets := make([]netip.Prefix, 0, len(internalCIDRs))
	for _, cidr := range internalCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid internal network %q: %w", cidr, err)
		}
		nets = append(nets, prefix)
	}

	return &Resolver{
		defaultPerMinute:  defaultPerMinute,
		upgradeMultiplier: upgradeMultiplier,
		overrides:         normalized,
		internalNets:      nets,
	}, nil
}

// Resolve returns the scope for an endpoint key (destination host for
// webhooks, channel name for email/SMS). Endpoints whose host is an address
// inside the internal allowlist share the upgraded internal bucket; everything
// else shares the external one.
func (r *Resolver) Resolve(endpoint string) Scope {
	normalized := strings.ToLower(strings.TrimSpace(endpoint))

	if limit, ok := r.overrides[normalized]; ok {
		return Scope{Key: "endpoint:" + normalized, LimitPerMinute: limit}
	}

	if r.isInternal(normalized) {
		return Scope{Key: scopeInternal, LimitPerMinute: r.defaultPerMinute * r.upgradeMultiplier}
	}

	return Scope{Key: scopeExternal, LimitPerMinute: r.defaultPerMinute}
}

func (r *Resolver) isInternal(endpoint string) bool {
	if endpoint == "localhost" {
		return true
	}

	addr, err := netip.ParseAddr(endpoint)
	if err != nil {
		// Hostnames are not resolved here; only literal addresses classify
		// as internal.
		return false
	}

	for _, prefix := range r.internalNets {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
