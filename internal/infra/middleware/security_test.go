package middleware

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'self'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeadersHSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	handler := RateLimit(NewClientLimiter(6, 3), nil)(okHandler())

	ok, blocked := 0, 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/ws", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		switch w.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			blocked++
		}
	}
	if ok != 3 || blocked != 7 {
		t.Errorf("ok=%d blocked=%d, want 3 and 7", ok, blocked)
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	l := NewClientLimiter(6, 1)
	if !l.Allow("user-a") {
		t.Fatal("first request for user-a should pass")
	}
	if l.Allow("user-a") {
		t.Error("second request for user-a should be limited")
	}
	if !l.Allow("user-b") {
		t.Error("user-b has its own bucket")
	}
}

func TestClientLimiterSweep(t *testing.T) {
	l := NewClientLimiter(60, 5)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("stale")

	now = now.Add(5 * time.Minute)
	l.Allow("fresh")
	l.Sweep(3 * time.Minute)

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestClientLimiterRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewClientLimiter(60, 5).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{"direct", "10.0.0.5:4000", nil, nil, "10.0.0.5"},
		{"spoofed xff ignored", "10.0.0.5:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, nil, "10.0.0.5"},
		{"trusted xff", "10.0.0.1:4000", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, []string{"10.0.0.1"}, "203.0.113.1"},
		{"trusted real ip", "10.0.0.1:4000", map[string]string{"X-Real-IP": " 203.0.113.9 "}, []string{"10.0.0.1"}, "203.0.113.9"},
		{"trusted no headers", "10.0.0.1:4000", nil, []string{"10.0.0.1"}, "10.0.0.1"},
		{"ipv6", "[::1]:4000", nil, nil, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
