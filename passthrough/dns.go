package passthrough

import (
	"context"
	"net"
	"sync"
	"time"
)

// DNSCache resolves hostnames with TTL-bounded memoization (§4.4 step 7,
// §9 "DNS caching"): a ~10s cache owned by each HTTP forwarder, or a
// LookupOptions-configured cache with explicit TTLs and servers.
type DNSCache struct {
	maxTTL      time.Duration
	errorTTL    time.Duration
	resolver    *net.Resolver

	mu      sync.Mutex
	entries map[string]dnsEntry
}

type dnsEntry struct {
	addrs   []string
	err     error
	expires time.Time
}

// LookupOptions configures a non-default cache (§4.4 step 7).
type LookupOptions struct {
	MaxTTL   time.Duration
	ErrorTTL time.Duration
	Servers  []string
}

// NewDefaultDNSCache builds a ~10s hostname cache; NewHTTPForwarder gives
// each forwarder its own.
func NewDefaultDNSCache() *DNSCache {
	return &DNSCache{
		maxTTL:   10 * time.Second,
		errorTTL: 10 * time.Second,
		resolver: net.DefaultResolver,
		entries:  map[string]dnsEntry{},
	}
}

// NewDNSCache builds a cache honoring explicit LookupOptions.
func NewDNSCache(opts LookupOptions) *DNSCache {
	c := &DNSCache{
		maxTTL:   opts.MaxTTL,
		errorTTL: opts.ErrorTTL,
		entries:  map[string]dnsEntry{},
	}
	if c.maxTTL == 0 {
		c.maxTTL = 10 * time.Second
	}
	if c.errorTTL == 0 {
		c.errorTTL = c.maxTTL
	}
	if len(opts.Servers) > 0 {
		server := opts.Servers[0]
		c.resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{}
				return d.DialContext(ctx, network, server)
			},
		}
	} else {
		c.resolver = net.DefaultResolver
	}
	return c
}

// Lookup resolves a hostname to its cached (or freshly-resolved) address
// list, with a fallback duration of 0 per §4.4 step 7: an expired-but-stale
// entry is never served past its TTL.
func (c *DNSCache) Lookup(ctx context.Context, host string) ([]string, error) {
	c.mu.Lock()
	if e, ok := c.entries[host]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.addrs, e.err
	}
	c.mu.Unlock()

	addrs, err := c.resolver.LookupHost(ctx, host)

	ttl := c.maxTTL
	if err != nil {
		ttl = c.errorTTL
	}

	c.mu.Lock()
	c.entries[host] = dnsEntry{addrs: addrs, err: err, expires: time.Now().Add(ttl)}
	c.mu.Unlock()

	return addrs, err
}
