package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewTrustedProxies(t *testing.T) {
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty list should trust none, got %v, %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected parse error")
	}
	tp, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil allowlist")
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cases := []struct {
		name    string
		remote  string
		xff     string
		trusted *TrustedProxies
		want    string
	}{
		{"direct peer", "203.0.113.7:1234", "", trusted, "203.0.113.7"},
		{"forwarded via trusted proxy", "10.0.0.5:443", "203.0.113.7", trusted, "203.0.113.7"},
		{"rightmost untrusted hop wins", "10.0.0.5:443", "198.51.100.9, 203.0.113.7", trusted, "203.0.113.7"},
		{"spoofed header from untrusted peer ignored", "203.0.113.7:80", "198.51.100.9", trusted, "203.0.113.7"},
		{"no trust configured", "10.0.0.5:443", "203.0.113.7", nil, "10.0.0.5"},
		{"all hops trusted falls back to peer", "10.0.0.5:443", "10.0.0.9", trusted, "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
