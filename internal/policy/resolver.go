package policy

import (
	"net/http"
	"strings"
)

// DefaultInternalPrefixes are the path prefixes treated as admin,
// background or async traffic.
func DefaultInternalPrefixes() []string {
	return []string{"/admin", "/internal", "/cron", "/ajax"}
}

// Resolver derives a Request from an inbound *http.Request.
type Resolver struct {
	// InternalPrefixes mark internal paths. A prefix matches the exact
	// path or any path below it.
	InternalPrefixes []string
	// TrustForwardedProto honours X-Forwarded-Proto from a terminating proxy.
	TrustForwardedProto bool
}

// NewResolver returns a resolver using the default prefixes.
func NewResolver(trustForwardedProto bool) Resolver {
	return Resolver{
		InternalPrefixes:    DefaultInternalPrefixes(),
		TrustForwardedProto: trustForwardedProto,
	}
}

// Resolve builds the engine view of r.
func (res Resolver) Resolve(r *http.Request) Request {
	if r == nil {
		return Request{Connection: ConnUnknown}
	}
	return Request{
		Connection: res.connection(r),
		Internal:   res.internal(r),
		HTTP:       r,
	}
}

// RequestFromHTTP resolves r with the default prefixes and no proxy trust.
func RequestFromHTTP(r *http.Request) Request {
	return NewResolver(false).Resolve(r)
}

func (res Resolver) connection(r *http.Request) Connection {
	if r.TLS != nil {
		return ConnTLS
	}
	if res.TrustForwardedProto {
		proto := r.Header.Get("X-Forwarded-Proto")
		if proto != "" {
			// Proxies may append; the first value is the client hop.
			first, _, _ := strings.Cut(proto, ",")
			switch strings.ToLower(strings.TrimSpace(first)) {
			case "https":
				return ConnTLS
			case "http":
				return ConnPlain
			}
			return ConnUnknown
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return ConnTLS
	}
	return ConnPlain
}

func (res Resolver) internal(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	if r.URL == nil {
		return false
	}
	path := r.URL.Path
	for _, prefix := range res.InternalPrefixes {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
