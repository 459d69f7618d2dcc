package server

import (
	"net/http/httptest"
	"testing"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin header", "", "example.com:8721", true},
		{"localhost", "http://localhost:3000", "example.com:8721", true},
		{"loopback v4", "http://127.0.0.1", "example.com:8721", true},
		{"loopback v6", "http://[::1]:8721", "example.com:8721", true},
		{"same origin", "http://example.com", "example.com:8721", true},
		{"private range", "http://192.168.1.20:8721", "example.com:8721", true},
		{"public cross origin", "http://evil.example.net", "example.com:8721", false},
		{"garbage origin", "http://%zz", "example.com:8721", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(origin=%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
