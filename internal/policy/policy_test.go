package policy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

// mapStore is an in-memory Writer for tests.
type mapStore struct {
	mu     sync.Mutex
	values map[string]bool
	failOn map[string]error
	panics map[string]bool
	calls  int
}

func newMapStore() *mapStore {
	return &mapStore{values: map[string]bool{}, failOn: map[string]error{}, panics: map[string]bool{}}
}

func (s *mapStore) GetBool(_ context.Context, key string, def bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panics[key] {
		panic("store exploded")
	}
	if err := s.failOn[key]; err != nil {
		return false, err
	}
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (s *mapStore) SetBool(_ context.Context, key string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	return nil
}

func (s *mapStore) AddBool(_ context.Context, key string, v bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = v
	return true, nil
}

func (s *mapStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// recordingSink captures Set calls in order.
type recordingSink struct {
	sent  bool
	lines [][2]string
}

func (s *recordingSink) Set(name, value string) { s.lines = append(s.lines, [2]string{name, value}) }
func (s *recordingSink) HeadersSent() bool      { return s.sent }

func (s *recordingSink) names() []string {
	out := make([]string, len(s.lines))
	for i, l := range s.lines {
		out[i] = l[0]
	}
	return out
}

func (s *recordingSink) get(name string) (string, bool) {
	for _, l := range s.lines {
		if l[0] == name {
			return l[1], true
		}
	}
	return "", false
}

func mustEngine(t *testing.T, store Accessor, opts ...Option) *Engine {
	t.Helper()
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable: %v", err)
	}
	e, err := NewEngine(table, store, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

const expectedCSP = "default-src * 'unsafe-inline' 'unsafe-eval' data: blob:; " +
	"script-src * 'unsafe-inline' 'unsafe-eval'; style-src * 'unsafe-inline'; " +
	"img-src * data: blob:; font-src * data:; connect-src *; media-src *; " +
	"object-src *; child-src *; frame-src *; worker-src *; frame-ancestors 'self'"

const expectedPermissions = "camera=(), microphone=(), geolocation=(), payment=(), " +
	"usb=(), magnetometer=(), gyroscope=(), accelerometer=()"

func TestApplyConnectionScenarios(t *testing.T) {
	all := []string{HeaderHSTS, HeaderCSP, HeaderFrame, HeaderMIME, HeaderReferrer, HeaderPermissions}
	noHSTS := all[1:]

	tests := []struct {
		name string
		conn Connection
		want []string
	}{
		{name: "tls emits all six", conn: ConnTLS, want: all},
		{name: "plain omits hsts", conn: ConnPlain, want: noHSTS},
		{name: "unknown fails closed", conn: ConnUnknown, want: noHSTS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustEngine(t, newMapStore())
			sink := &recordingSink{}

			out := e.Apply(context.Background(), Request{Connection: tt.conn}, sink)

			if got := strings.Join(sink.names(), ","); got != strings.Join(tt.want, ",") {
				t.Errorf("headers = %s, want %s", got, strings.Join(tt.want, ","))
			}
			if strings.Join(out.Applied, ",") != strings.Join(tt.want, ",") {
				t.Errorf("outcome applied = %v", out.Applied)
			}
		})
	}
}

func TestApplyValues(t *testing.T) {
	e := mustEngine(t, newMapStore())
	sink := &recordingSink{}
	e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)

	want := map[string]string{
		HeaderHSTS:        "max-age=31536000; includeSubDomains; preload",
		HeaderCSP:         expectedCSP,
		HeaderFrame:       "SAMEORIGIN",
		HeaderMIME:        "nosniff",
		HeaderReferrer:    "strict-origin-when-cross-origin",
		HeaderPermissions: expectedPermissions,
	}
	for name, value := range want {
		got, ok := sink.get(name)
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if strings.HasSuffix(expectedCSP, ";") {
		t.Fatal("expected CSP has trailing separator")
	}
}

func TestApplyDisabledHeaderAbsent(t *testing.T) {
	store := newMapStore()
	store.values[KeyFrame] = false
	e := mustEngine(t, store)
	sink := &recordingSink{}

	out := e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)

	if _, ok := sink.get(HeaderFrame); ok {
		t.Error("disabled X-Frame-Options must not be emitted")
	}
	if len(sink.lines) != 5 {
		t.Errorf("expected 5 headers, got %d", len(sink.lines))
	}
	if len(out.Skipped) != 1 || out.Skipped[0] != (Skipped{Key: KeyFrame, Reason: SkipDisabled}) {
		t.Errorf("unexpected skipped: %v", out.Skipped)
	}
}

func TestApplyDisabledHSTSOnTLS(t *testing.T) {
	store := newMapStore()
	store.values[KeyHSTS] = false
	e := mustEngine(t, store)
	sink := &recordingSink{}

	e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)

	if _, ok := sink.get(HeaderHSTS); ok {
		t.Error("disabled HSTS must not be emitted even on TLS")
	}
}

func TestApplyInternalBypass(t *testing.T) {
	store := newMapStore()
	e := mustEngine(t, store)
	sink := &recordingSink{}

	out := e.Apply(context.Background(), Request{Connection: ConnTLS, Internal: true}, sink)

	if len(sink.lines) != 0 {
		t.Errorf("internal request got headers: %v", sink.names())
	}
	if out.Bypassed != BypassInternal {
		t.Errorf("bypass = %q", out.Bypassed)
	}
	if store.calls != 0 {
		t.Errorf("expected no lookups, got %d", store.calls)
	}
}

func TestApplyInternalNotExcluded(t *testing.T) {
	e := mustEngine(t, newMapStore(), WithExcludeInternal(false))
	sink := &recordingSink{}

	e.Apply(context.Background(), Request{Connection: ConnPlain, Internal: true}, sink)

	if len(sink.lines) != 5 {
		t.Errorf("expected 5 headers with exclusion off, got %d", len(sink.lines))
	}
}

func TestApplyHeadersAlreadySent(t *testing.T) {
	store := newMapStore()
	e := mustEngine(t, store)
	sink := &recordingSink{sent: true}

	out := e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)

	if len(sink.lines) != 0 {
		t.Errorf("expected no headers after flush, got %v", sink.names())
	}
	if out.Bypassed != BypassHeadersSent {
		t.Errorf("bypass = %q", out.Bypassed)
	}
	if store.calls != 0 {
		t.Errorf("expected no lookups, got %d", store.calls)
	}
}

func TestApplyLookupFailureUsesDefault(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := newMapStore()
	store.failOn[KeyCSP] = errors.New("connection refused")
	store.panics[KeyMIME] = true
	store.values[KeyReferrer] = false
	e := mustEngine(t, store, WithMetrics(m))
	sink := &recordingSink{}

	out := e.Apply(context.Background(), Request{Connection: ConnPlain}, sink)

	if _, ok := sink.get(HeaderCSP); !ok {
		t.Error("failed CSP lookup should fall back to enabled default")
	}
	if _, ok := sink.get(HeaderMIME); !ok {
		t.Error("panicking lookup should fall back to enabled default")
	}
	if _, ok := sink.get(HeaderReferrer); ok {
		t.Error("other lookups must still be honoured")
	}
	if out.LookupFails != 2 {
		t.Errorf("lookup fails = %d, want 2", out.LookupFails)
	}
	if got := promtest.ToFloat64(m.SettingsLookupErrors.WithLabelValues(KeyCSP)); got != 1 {
		t.Errorf("lookup error metric = %.0f", got)
	}
}

func TestApplyNilAccessorUsesDefaults(t *testing.T) {
	e := mustEngine(t, nil)
	sink := &recordingSink{}
	e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)
	if len(sink.lines) != 6 {
		t.Errorf("expected 6 headers, got %d", len(sink.lines))
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	e := mustEngine(t, newMapStore())
	a, b := &recordingSink{}, &recordingSink{}
	e.Apply(context.Background(), Request{Connection: ConnTLS}, a)
	e.Apply(context.Background(), Request{Connection: ConnTLS}, b)

	if len(a.lines) != len(b.lines) {
		t.Fatalf("line counts differ: %d vs %d", len(a.lines), len(b.lines))
	}
	for i := range a.lines {
		if a.lines[i] != b.lines[i] {
			t.Errorf("line %d differs: %v vs %v", i, a.lines[i], b.lines[i])
		}
	}
}

func TestApplyMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	e := mustEngine(t, newMapStore(), WithMetrics(m))

	e.Apply(context.Background(), Request{Connection: ConnPlain}, &recordingSink{})
	e.Apply(context.Background(), Request{Internal: true}, &recordingSink{})

	if got := promtest.ToFloat64(m.HeadersAppliedTotal.WithLabelValues(HeaderCSP)); got != 1 {
		t.Errorf("csp applied = %.0f", got)
	}
	if got := promtest.ToFloat64(m.HeadersSkippedTotal.WithLabelValues(KeyHSTS, SkipPrecondition)); got != 1 {
		t.Errorf("hsts skipped = %.0f", got)
	}
	if got := promtest.ToFloat64(m.ResponsesBypassed.WithLabelValues(BypassInternal)); got != 1 {
		t.Errorf("internal bypass = %.0f", got)
	}
}

func TestActivateSeedsOnlyMissing(t *testing.T) {
	store := newMapStore()
	store.values[KeyFrame] = false
	store.values["unrelated_option"] = true
	e := mustEngine(t, store)

	if err := e.Activate(context.Background(), store); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if store.values[KeyFrame] {
		t.Error("existing value must be preserved")
	}
	for _, k := range []string{KeyHSTS, KeyCSP, KeyMIME, KeyReferrer, KeyPermissions} {
		if v, ok := store.values[k]; !ok || !v {
			t.Errorf("%s not seeded with default", k)
		}
	}
	if !store.values["unrelated_option"] {
		t.Error("unrelated key modified")
	}
}

func TestDeactivateRemovesOnlyTableKeys(t *testing.T) {
	store := newMapStore()
	e := mustEngine(t, store)
	if err := e.Activate(context.Background(), store); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	store.values["unrelated_option"] = false

	if err := e.Deactivate(context.Background(), store); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if len(store.values) != 1 {
		t.Errorf("expected only the unrelated key to remain, got %v", store.values)
	}
	if _, ok := store.values["unrelated_option"]; !ok {
		t.Error("unrelated key removed")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	store := newMapStore()
	for _, k := range []string{KeyHSTS, KeyCSP, KeyPermissions} {
		store.values[k] = false
	}
	e := mustEngine(t, store)

	if err := e.Reset(context.Background(), store); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for _, k := range e.Table().Keys() {
		if !store.values[k] {
			t.Errorf("%s not reset", k)
		}
	}
}

func TestDescribe(t *testing.T) {
	store := newMapStore()
	store.values[KeyMIME] = false
	e := mustEngine(t, store)

	statuses := e.Describe(context.Background())
	if len(statuses) != 6 {
		t.Fatalf("expected 6 statuses, got %d", len(statuses))
	}
	if statuses[0].Key != KeyHSTS || !statuses[0].TLSOnly {
		t.Errorf("first status should be tls-only hsts: %+v", statuses[0])
	}
	if statuses[3].Key != KeyMIME || statuses[3].Enabled || !statuses[3].DefaultEnabled {
		t.Errorf("mime status wrong: %+v", statuses[3])
	}
	if statuses[1].Value != expectedCSP {
		t.Errorf("csp value = %q", statuses[1].Value)
	}
}

func TestNewEngineRequiresTable(t *testing.T) {
	if _, err := NewEngine(nil, nil); err == nil {
		t.Error("expected error for nil table")
	}
}

func TestNewTableValidation(t *testing.T) {
	ok := Definition{Key: "a", Header: "X-A", Value: Static("1")}

	tests := []struct {
		name string
		defs []Definition
		want error
	}{
		{name: "valid", defs: []Definition{ok}, want: nil},
		{name: "empty key", defs: []Definition{{Header: "X", Value: Static("")}}, want: ErrEmptyKey},
		{name: "duplicate key", defs: []Definition{ok, ok}, want: ErrDuplicateKey},
		{name: "empty header", defs: []Definition{{Key: "b", Value: Static("")}}, want: ErrEmptyHeader},
		{name: "nil value", defs: []Definition{{Key: "c", Header: "X-C"}}, want: ErrNilValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.defs...)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTableAccessors(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 6 {
		t.Errorf("len = %d", table.Len())
	}
	keys := table.Keys()
	want := []string{KeyHSTS, KeyCSP, KeyFrame, KeyMIME, KeyReferrer, KeyPermissions}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v", keys)
	}
	def, ok := table.Lookup(KeyReferrer)
	if !ok || def.Header != HeaderReferrer {
		t.Errorf("lookup referrer = %+v, %v", def, ok)
	}
	if _, ok := table.Lookup("nope"); ok {
		t.Error("unexpected lookup hit")
	}

	defs := table.Definitions()
	defs[0].Header = "mutated"
	if d, _ := table.Lookup(KeyHSTS); d.Header != HeaderHSTS {
		t.Error("Definitions must return a copy")
	}
}

func TestJoinDirectives(t *testing.T) {
	tests := []struct {
		name string
		join func([]string) string
		in   []string
		want string
	}{
		{name: "csp", join: JoinCSP, in: []string{"a", "b"}, want: "a; b"},
		{name: "csp trailing", join: JoinCSP, in: []string{"a;", "b; "}, want: "a; b"},
		{name: "csp empties", join: JoinCSP, in: []string{"", "a", "  "}, want: "a"},
		{name: "csp nil", join: JoinCSP, in: nil, want: ""},
		{name: "permissions", join: JoinPermissions, in: []string{"camera=()", "usb=(),"}, want: "camera=(), usb=()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.join(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultTableFilters(t *testing.T) {
	var seen []string
	table, err := DefaultTable(
		WithCSPFilter(func(d []string) []string {
			seen = d
			return append(d, "upgrade-insecure-requests")
		}),
		WithPermissionsFilter(func(d []string) []string { return d[:1] }),
		WithPermissionsFilter(func(d []string) []string { return append(d, "fullscreen=(self)") }),
	)
	if err != nil {
		t.Fatal(err)
	}

	csp, _ := table.Lookup(KeyCSP)
	if got := csp.Value(Request{}); got != expectedCSP+"; upgrade-insecure-requests" {
		t.Errorf("filtered csp = %q", got)
	}
	perm, _ := table.Lookup(KeyPermissions)
	if got := perm.Value(Request{}); got != "camera=(), fullscreen=(self)" {
		t.Errorf("filtered permissions = %q", got)
	}

	// The filter received a copy; mutating it must not affect defaults.
	seen[0] = "mutated"
	if DefaultCSPDirectives()[0] == "mutated" {
		t.Error("defaults were mutated")
	}
}

func TestDefaultTableCustomDirectives(t *testing.T) {
	table, err := DefaultTable(WithCSPDirectives([]string{"default-src 'self'"}), WithPermissionsDirectives(nil))
	if err != nil {
		t.Fatal(err)
	}
	csp, _ := table.Lookup(KeyCSP)
	if got := csp.Value(Request{}); got != "default-src 'self'" {
		t.Errorf("csp = %q", got)
	}
	perm, _ := table.Lookup(KeyPermissions)
	if got := perm.Value(Request{}); got != expectedPermissions {
		t.Errorf("empty override should keep defaults, got %q", got)
	}
}

func TestResolver(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *http.Request
		trust    bool
		conn     Connection
		internal bool
	}{
		{
			name:  "plain public",
			build: func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) },
			conn:  ConnPlain,
		},
		{
			name:  "tls",
			build: func() *http.Request { return httptest.NewRequest(http.MethodGet, "https://example.com/page", nil) },
			conn:  ConnTLS,
		},
		{
			name: "forwarded https trusted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("X-Forwarded-Proto", "https, http")
				return r
			},
			trust: true,
			conn:  ConnTLS,
		},
		{
			name: "forwarded https untrusted",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("X-Forwarded-Proto", "https")
				return r
			},
			conn: ConnPlain,
		},
		{
			name: "forwarded garbage is unknown",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("X-Forwarded-Proto", "quic")
				return r
			},
			trust: true,
			conn:  ConnUnknown,
		},
		{
			name:     "admin path",
			build:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/admin/headers", nil) },
			conn:     ConnPlain,
			internal: true,
		},
		{
			name:  "admin lookalike",
			build: func() *http.Request { return httptest.NewRequest(http.MethodGet, "/administrator", nil) },
			conn:  ConnPlain,
		},
		{
			name:     "cron exact",
			build:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/cron", nil) },
			conn:     ConnPlain,
			internal: true,
		},
		{
			name: "xhr",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/page", nil)
				r.Header.Set("X-Requested-With", "XMLHttpRequest")
				return r
			},
			conn:     ConnPlain,
			internal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewResolver(tt.trust).Resolve(tt.build())
			if got.Connection != tt.conn {
				t.Errorf("connection = %v, want %v", got.Connection, tt.conn)
			}
			if got.Internal != tt.internal {
				t.Errorf("internal = %v, want %v", got.Internal, tt.internal)
			}
		})
	}
}

func TestResolveNilRequest(t *testing.T) {
	if got := RequestFromHTTP(nil); got.Connection != ConnUnknown {
		t.Errorf("nil request connection = %v", got.Connection)
	}
}

func TestMiddleware(t *testing.T) {
	e := mustEngine(t, newMapStore())
	handler := e.Middleware(NewResolver(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	t.Run("public page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Header().Get(HeaderFrame) != ValueFrame {
			t.Errorf("missing frame header: %v", rec.Header())
		}
		if rec.Header().Get(HeaderHSTS) != "" {
			t.Error("hsts on plain connection")
		}
	})

	t.Run("tls page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
		if rec.Header().Get(HeaderHSTS) != ValueHSTS {
			t.Errorf("hsts missing on tls: %v", rec.Header())
		}
	})

	t.Run("internal path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/jobs", nil))
		for _, h := range []string{HeaderCSP, HeaderFrame, HeaderMIME, HeaderReferrer, HeaderPermissions} {
			if rec.Header().Get(h) != "" {
				t.Errorf("%s set on internal response", h)
			}
		}
	})
}

func TestResponseSinkHeadersSent(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, ww := NewResponseSink(rec, 1)
	if sink.HeadersSent() {
		t.Fatal("fresh writer reported sent")
	}
	ww.WriteHeader(http.StatusNoContent)
	if !sink.HeadersSent() {
		t.Fatal("expected sent after WriteHeader")
	}

	e := mustEngine(t, newMapStore())
	out := e.Apply(context.Background(), Request{Connection: ConnTLS}, sink)
	if out.Bypassed != BypassHeadersSent {
		t.Errorf("second apply after write should be a no-op, got %+v", out)
	}
}
