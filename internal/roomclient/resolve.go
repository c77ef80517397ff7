package roomclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// publicDNS is queried when the system resolver cannot find the relay host,
// which happens on phones and captive networks with broken local DNS.
var publicDNS = []string{
	"1.1.1.1:53",                // Cloudflare
	"1.0.0.1:53",                // Cloudflare
	"[2606:4700:4700::1111]:53", // Cloudflare
	"8.8.8.8:53",                // Google
	"8.8.4.4:53",                // Google
	"[2001:4860:4860::8888]:53", // Google
	"9.9.9.9:53",                // Quad9
	"149.112.112.112:53",        // Quad9
}

const (
	localLookupTimeout  = time.Second
	publicLookupTimeout = 2 * time.Second
)

// resolver finds an address for the relay host, preferring IPv4.
type resolver struct {
	servers []string
	local   func(ctx context.Context, host string) ([]string, error)
}

func newResolver() *resolver {
	return &resolver{
		servers: publicDNS,
		local:   net.DefaultResolver.LookupHost,
	}
}

// lookup tries the system resolver first and then races the public servers.
// IP literals are returned unchanged.
func (r *resolver) lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localLookupTimeout)
	addrs, err := r.local(lctx, host)
	cancel()
	if ip, ok := preferIPv4(addrs); err == nil && ok {
		return ip, nil
	}

	return r.race(ctx, host)
}

func (r *resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("resolve %s: no fallback servers", host)
	}

	ctx, cancel := context.WithTimeout(ctx, publicLookupTimeout)
	defer cancel()

	type result struct {
		ip  string
		err error
	}
	results := make(chan result, len(r.servers))
	for _, server := range r.servers {
		go func(server string) {
			ip, err := lookupVia(ctx, server, host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	var errs []error
	for range r.servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			errs = append(errs, res.err)
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: %w", host, errors.Join(errs...))
}

func lookupVia(ctx context.Context, server, host string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	ip, ok := preferIPv4(addrs)
	if !ok {
		return "", errors.New("no addresses returned")
	}
	return ip, nil
}

func preferIPv4(addrs []string) (string, bool) {
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, true
		}
	}
	if len(addrs) > 0 {
		return addrs[0], true
	}
	return "", false
}

// dialContext resolves the host part of addr with r before dialing.
func (r *resolver) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}
