package policy

import "strings"

// Stable setting keys. Stores persist enablement under these names, so
// they must never change between releases.
const (
	KeyHSTS        = "security_header_hsts"
	KeyCSP         = "security_header_csp"
	KeyFrame       = "security_header_frame"
	KeyMIME        = "security_header_mime"
	KeyReferrer    = "security_header_referrer"
	KeyPermissions = "security_header_permissions"
)

// Header field names.
const (
	HeaderHSTS        = "Strict-Transport-Security"
	HeaderCSP         = "Content-Security-Policy"
	HeaderFrame       = "X-Frame-Options"
	HeaderMIME        = "X-Content-Type-Options"
	HeaderReferrer    = "Referrer-Policy"
	HeaderPermissions = "Permissions-Policy"
)

// Static header values.
const (
	ValueHSTS     = "max-age=31536000; includeSubDomains; preload"
	ValueFrame    = "SAMEORIGIN"
	ValueMIME     = "nosniff"
	ValueReferrer = "strict-origin-when-cross-origin"
)

// Directive separators.
const (
	CSPSeparator         = "; "
	PermissionsSeparator = ", "
)

// DefaultCSPDirectives returns the permissive development-friendly policy.
// Only frame-ancestors is restricted.
func DefaultCSPDirectives() []string {
	return []string{
		"default-src * 'unsafe-inline' 'unsafe-eval' data: blob:",
		"script-src * 'unsafe-inline' 'unsafe-eval'",
		"style-src * 'unsafe-inline'",
		"img-src * data: blob:",
		"font-src * data:",
		"connect-src *",
		"media-src *",
		"object-src *",
		"child-src *",
		"frame-src *",
		"worker-src *",
		"frame-ancestors 'self'",
	}
}

// DefaultPermissionsDirectives denies every listed feature to all origins.
func DefaultPermissionsDirectives() []string {
	return []string{
		"camera=()",
		"microphone=()",
		"geolocation=()",
		"payment=()",
		"usb=()",
		"magnetometer=()",
		"gyroscope=()",
		"accelerometer=()",
	}
}

// JoinCSP joins CSP directives. Empty entries are dropped.
func JoinCSP(directives []string) string {
	return joinDirectives(directives, CSPSeparator)
}

// JoinPermissions joins Permissions-Policy tokens. Empty entries are dropped.
func JoinPermissions(directives []string) string {
	return joinDirectives(directives, PermissionsSeparator)
}

func joinDirectives(directives []string, sep string) string {
	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		d = strings.TrimSpace(d)
		d = strings.TrimRight(d, ";,")
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		parts = append(parts, d)
	}
	return strings.Join(parts, sep)
}

// DirectiveFilter rewrites a directive list before it is joined. It
// receives a private copy and may return a new slice.
type DirectiveFilter func([]string) []string

// TableOption customises DefaultTable.
type TableOption func(*tableOptions)

type tableOptions struct {
	csp         []string
	permissions []string
	cspFilters  []DirectiveFilter
	permFilters []DirectiveFilter
}

// WithCSPDirectives replaces the default CSP directive list. A nil or
// empty list keeps the defaults.
func WithCSPDirectives(directives []string) TableOption {
	return func(o *tableOptions) {
		if len(directives) > 0 {
			o.csp = append([]string(nil), directives...)
		}
	}
}

// WithPermissionsDirectives replaces the default Permissions-Policy list.
// A nil or empty list keeps the defaults.
func WithPermissionsDirectives(directives []string) TableOption {
	return func(o *tableOptions) {
		if len(directives) > 0 {
			o.permissions = append([]string(nil), directives...)
		}
	}
}

// WithCSPFilter registers a filter run over the CSP directives. Filters
// run in registration order.
func WithCSPFilter(f DirectiveFilter) TableOption {
	return func(o *tableOptions) {
		if f != nil {
			o.cspFilters = append(o.cspFilters, f)
		}
	}
}

// WithPermissionsFilter registers a filter run over the Permissions-Policy
// tokens. Filters run in registration order.
func WithPermissionsFilter(f DirectiveFilter) TableOption {
	return func(o *tableOptions) {
		if f != nil {
			o.permFilters = append(o.permFilters, f)
		}
	}
}

func applyFilters(list []string, filters []DirectiveFilter) []string {
	for _, f := range filters {
		list = f(append([]string(nil), list...))
	}
	return list
}

// DefaultTable builds the six shipped definitions in emission order.
// Directive lists are resolved once here, so value builders only return
// precomputed strings.
func DefaultTable(opts ...TableOption) (*Table, error) {
	o := tableOptions{
		csp:         DefaultCSPDirectives(),
		permissions: DefaultPermissionsDirectives(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	csp := JoinCSP(applyFilters(o.csp, o.cspFilters))
	permissions := JoinPermissions(applyFilters(o.permissions, o.permFilters))

	return NewTable(
		Definition{
			Key:   KeyHSTS,
			Label: HeaderHSTS,
			Description: "Forces HTTPS and instructs browsers to only access the site over HTTPS for a " +
				"specified time. Helps prevent downgrade attacks and cookie hijacking.",
			Header:         HeaderHSTS,
			Value:          Static(ValueHSTS),
			DefaultEnabled: true,
			Precondition:   RequireTLS,
		},
		Definition{
			Key:   KeyCSP,
			Label: HeaderCSP,
			Description: "Restricts where content (scripts, styles, images) can load from. " +
				"Helps mitigate XSS and data injection attacks.",
			Header:         HeaderCSP,
			Value:          Static(csp),
			DefaultEnabled: true,
		},
		Definition{
			Key:   KeyFrame,
			Label: HeaderFrame,
			Description: "Prevents the site from being embedded in iframes on other sites, protecting " +
				"against clickjacking attacks.",
			Header:         HeaderFrame,
			Value:          Static(ValueFrame),
			DefaultEnabled: true,
		},
		Definition{
			Key:   KeyMIME,
			Label: HeaderMIME,
			Description: "Instructs browsers not to sniff MIME types. Reduces exposure to drive-by " +
				"download and content-type confusion attacks.",
			Header:         HeaderMIME,
			Value:          Static(ValueMIME),
			DefaultEnabled: true,
		},
		Definition{
			Key:   KeyReferrer,
			Label: HeaderReferrer,
			Description: "Controls how much referrer information is included with requests. Helps balance " +
				"privacy and analytics needs.",
			Header:         HeaderReferrer,
			Value:          Static(ValueReferrer),
			DefaultEnabled: true,
		},
		Definition{
			Key:   KeyPermissions,
			Label: HeaderPermissions,
			Description: "Gives fine-grained control over access to powerful browser features like " +
				"camera, microphone, and geolocation.",
			Header:         HeaderPermissions,
			Value:          Static(permissions),
			DefaultEnabled: true,
		},
	)
}
