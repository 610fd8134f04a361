package settings

import "testing"

func TestScanPatternEscapesPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"secheaders:", "secheaders:*"},
		{"", "*"},
		{"app*:", `app\*:*`},
		{"a?b", `a\?b*`},
		{"[prod]:", `\[prod\]:*`},
		{`back\slash:`, `back\\slash:*`},
	}
	for _, tt := range tests {
		if got := scanPattern(tt.prefix); got != tt.want {
			t.Errorf("scanPattern(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
