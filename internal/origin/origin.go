// Package origin decides whether a browser Origin may open a signaling
// websocket.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Checker holds a normalized origin allowlist. An empty list means
// same-host only; "*" allows every origin.
type Checker struct {
	allowed []string
	any     bool
}

// NewChecker normalizes each entry of allowed. Entries that are not valid
// origins are dropped and returned in rejected.
func NewChecker(allowed []string) (c *Checker, rejected []string) {
	c = &Checker{}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			c.any = true
			continue
		}
		norm, _, ok := Normalize(entry)
		if !ok {
			rejected = append(rejected, entry)
			continue
		}
		c.allowed = append(c.allowed, norm)
	}
	return c, rejected
}

// CheckRequest reports whether r may be upgraded. Requests without an Origin
// header come from non-browser clients and are always allowed.
func (c *Checker) CheckRequest(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return true
	}
	norm, host, ok := Normalize(header)
	if !ok {
		return false
	}
	return c.Allowed(norm, host, r.Host)
}

// Allowed reports whether a normalized origin may talk to requestHost.
func (c *Checker) Allowed(normalized, originHost, requestHost string) bool {
	if c.any {
		return true
	}
	if len(c.allowed) > 0 {
		for _, a := range c.allowed {
			if a == normalized {
				return true
			}
		}
		return false
	}

	// Scheme is not compared: a TLS-terminating proxy makes the request look
	// like plain HTTP while the browser origin is https.
	scheme, _, found := strings.Cut(normalized, "://")
	if !found {
		return false
	}
	reqHost, ok := canonicalHost(scheme, requestHost)
	return ok && reqHost == originHost
}

// Normalize validates an Origin header value and returns scheme://host[:port]
// plus the host[:port] part. Default ports are dropped.
func Normalize(header string) (normalized, host string, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" || header == "null" {
		return "", "", false
	}
	u, err := url.Parse(header)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = canonicalHost(scheme, u.Host)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

func canonicalHost(scheme, raw string) (string, bool) {
	hostname, port, ok := splitHostPort(strings.ToLower(strings.TrimSpace(raw)))
	if !ok || hostname == "" {
		return "", false
	}
	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		} else {
			port = strconv.FormatUint(n, 10)
		}
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port == "" {
		return hostname, true
	}
	return hostname + ":" + port, true
}

// splitHostPort accepts "host", "host:port", "[v6]" and "[v6]:port".
func splitHostPort(hostport string) (host, port string, ok bool) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", false
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if rest == "" {
			return host, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return host, rest[1:], true
	}
	if strings.Count(hostport, ":") > 1 {
		return "", "", false
	}
	host, port, found := strings.Cut(hostport, ":")
	if found && port == "" {
		return "", "", false
	}
	return host, port, true
}
