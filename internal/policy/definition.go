package policy

import (
	"errors"
	"fmt"
	"net/http"
)

// Connection describes the transport security of an inbound request.
type Connection int

const (
	// ConnUnknown means the transport could not be determined.
	// Preconditions that depend on it fail closed.
	ConnUnknown Connection = iota
	ConnPlain
	ConnTLS
)

// String returns the label used in logs and metrics.
func (c Connection) String() string {
	switch c {
	case ConnPlain:
		return "plain"
	case ConnTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Request is the per-response view the engine evaluates definitions against.
type Request struct {
	Connection Connection
	// Internal marks admin, background and async requests. The engine
	// leaves those responses untouched when exclusion is enabled.
	Internal bool
	// HTTP is the originating request, used for logging only. May be nil.
	HTTP *http.Request
}

// Secure reports whether the request is known to have arrived over TLS.
func (r Request) Secure() bool {
	return r.Connection == ConnTLS
}

// ValueFunc builds a header value. It must be pure.
type ValueFunc func(Request) string

// Predicate gates a definition independent of its enablement flag.
type Predicate func(Request) bool

// Definition describes one security header the engine may emit.
type Definition struct {
	Key            string    // Stable configuration key (persisted by settings stores)
	Label          string    // Human-readable name (admin API only)
	Description    string    // Rationale shown by the admin API
	Header         string    // Literal HTTP header field name
	Value          ValueFunc // Pure value builder
	DefaultEnabled bool      // Used when no setting exists or the lookup fails
	Precondition   Predicate // Optional; nil means always applicable
}

// applies evaluates the optional precondition.
func (d Definition) applies(req Request) bool {
	if d.Precondition == nil {
		return true
	}
	return d.Precondition(req)
}

// Static returns a ValueFunc that always yields v.
func Static(v string) ValueFunc {
	return func(Request) string { return v }
}

// RequireTLS is the HSTS precondition. Unknown connections do not qualify.
func RequireTLS(req Request) bool {
	return req.Connection == ConnTLS
}

// Table construction errors.
var (
	ErrEmptyKey     = errors.New("policy: definition key is empty")
	ErrDuplicateKey = errors.New("policy: duplicate definition key")
	ErrEmptyHeader  = errors.New("policy: definition header name is empty")
	ErrNilValue     = errors.New("policy: definition value builder is nil")
)

// Table is an ordered, immutable list of definitions. Iteration order is
// emission order.
type Table struct {
	defs  []Definition
	index map[string]int
}

// NewTable validates defs and freezes them into a Table.
func NewTable(defs ...Definition) (*Table, error) {
	t := &Table{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("definition %d: %w", i, ErrEmptyKey)
		}
		if _, dup := t.index[d.Key]; dup {
			return nil, fmt.Errorf("definition %q: %w", d.Key, ErrDuplicateKey)
		}
		if d.Header == "" {
			return nil, fmt.Errorf("definition %q: %w", d.Key, ErrEmptyHeader)
		}
		if d.Value == nil {
			return nil, fmt.Errorf("definition %q: %w", d.Key, ErrNilValue)
		}
		t.index[d.Key] = len(t.defs)
		t.defs = append(t.defs, d)
	}
	return t, nil
}

// Len returns the number of definitions.
func (t *Table) Len() int { return len(t.defs) }

// Definitions returns a copy of the definitions in table order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.defs))
	copy(out, t.defs)
	return out
}

// Keys returns every definition key in table order.
func (t *Table) Keys() []string {
	keys := make([]string, len(t.defs))
	for i, d := range t.defs {
		keys[i] = d.Key
	}
	return keys
}

// Lookup finds a definition by key.
func (t *Table) Lookup(key string) (Definition, bool) {
	i, ok := t.index[key]
	if !ok {
		return Definition{}, false
	}
	return t.defs[i], true
}
