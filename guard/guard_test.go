package guard

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chirp/dbopen"
	"github.com/hazyhaar/chirp/kit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP missing")
	}
}

func TestRequestLogSetsRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = kit.GetRequestID(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestLog(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/health", nil))

	if seen == "" {
		t.Error("request id not in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header id %q != context id %q", got, seen)
	}
}

func TestRateLimiter(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(`
		INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
		VALUES ('POST /v1/documents', 2, 60, 1)`); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	rl := NewRateLimiter(db, "/v1/health")
	h := rl.Middleware(okHandler())

	post := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/v1/documents", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if c := post(); c != http.StatusOK {
		t.Fatalf("first request = %d", c)
	}
	if c := post(); c != http.StatusOK {
		t.Fatalf("second request = %d", c)
	}
	if c := post(); c != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", c)
	}

	// Other IPs have their own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/documents", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other ip = %d", rec.Code)
	}

	// Unruled endpoints are unlimited.
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/v1/shield-codes", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("unruled request %d = %d", i, rec.Code)
		}
	}

	// Excluded prefixes bypass entirely.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/health", nil)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("excluded path = %d", rec.Code)
	}
}

func TestRateLimiterConcurrent(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	if _, err := db.Exec(`
		INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
		VALUES ('POST /v1/documents', 50, 60, 1)`); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	rl := NewRateLimiter(db)

	var wg sync.WaitGroup
	var allowed atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.allow("10.0.0.1", "POST /v1/documents") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed = %d of 100, want exactly 50", got)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ExtractIP(req); got != "192.0.2.1" {
		t.Errorf("ExtractIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.7" {
		t.Errorf("ExtractIP with XFF = %q", got)
	}
}
