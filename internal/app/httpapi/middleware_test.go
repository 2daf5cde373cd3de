package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimit_ThrottlesPerCaller(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(next, 2)

	do := func(method, caller string) int {
		req := httptest.NewRequest(method, "/flights", nil)
		if caller != "" {
			req.Header.Set("X-Caller", caller)
		}
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst is perSecond+1, so the fourth mutation in a row is throttled.
	throttled := false
	for i := 0; i < 10; i++ {
		if do(http.MethodPost, "airline-1") == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	if !throttled {
		t.Fatalf("expected the caller to be throttled")
	}

	// Other callers keep their own bucket, and reads are never throttled.
	if code := do(http.MethodPost, "airline-2"); code != http.StatusOK {
		t.Fatalf("independent caller throttled: %d", code)
	}
	for i := 0; i < 10; i++ {
		if code := do(http.MethodGet, "airline-1"); code != http.StatusOK {
			t.Fatalf("read request throttled: %d", code)
		}
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(next, 0)

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/flights", nil)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter throttled request %d: %d", i, rec.Code)
		}
	}
}
