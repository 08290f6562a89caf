package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestEnhancedRateLimiting verifies per-client token bucket behavior
func TestEnhancedRateLimiting(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(1), 2)

	clientID := "test-client"

	// Burst allows the first two requests
	if !limiter.Allow(clientID) {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow(clientID) {
		t.Error("Second request should be allowed within burst")
	}

	// Third request exceeds the burst
	if limiter.Allow(clientID) {
		t.Error("Third request should be rate limited")
	}

	// A different client has its own bucket
	if !limiter.Allow("other-client") {
		t.Error("Different client should not share the bucket")
	}
}

// TestRateLimitMiddleware verifies the HTTP response for limited clients
func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(1), 1)

	handler := RateLimitMiddleware(limiter, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/feeds", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("First request: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: expected 429, got %d", w.Code)
	}
}

// TestClientIdentifier verifies identifier stability and separation
func TestClientIdentifier(t *testing.T) {
	reqA := httptest.NewRequest("GET", "/feeds", nil)
	reqA.RemoteAddr = "10.0.0.1:1234"
	reqA.Header.Set("User-Agent", "feedctl/1.0")

	reqB := httptest.NewRequest("GET", "/feeds", nil)
	reqB.RemoteAddr = "10.0.0.2:1234"
	reqB.Header.Set("User-Agent", "feedctl/1.0")

	idA1 := getClientIdentifier(reqA)
	idA2 := getClientIdentifier(reqA)
	idB := getClientIdentifier(reqB)

	if idA1 != idA2 {
		t.Error("Same request should produce the same client identifier")
	}
	if idA1 == idB {
		t.Error("Different IPs should produce different client identifiers")
	}

	// X-Forwarded-For takes precedence over RemoteAddr
	reqC := httptest.NewRequest("GET", "/feeds", nil)
	reqC.RemoteAddr = "10.0.0.1:1234"
	reqC.Header.Set("User-Agent", "feedctl/1.0")
	reqC.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if getClientIdentifier(reqC) == idA1 {
		t.Error("Forwarded IP should change the client identifier")
	}
}

// TestRateLimiterCleanup verifies stale client entries are dropped
func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(1), 1)

	limiter.Allow("stale-client")
	limiter.Allow("fresh-client")

	limiter.mutex.Lock()
	limiter.clients["stale-client"].lastSeen = time.Now().Add(-10 * time.Minute)
	limiter.mutex.Unlock()

	limiter.Cleanup()

	limiter.mutex.RLock()
	defer limiter.mutex.RUnlock()

	if _, exists := limiter.clients["stale-client"]; exists {
		t.Error("Stale client should have been cleaned up")
	}
	if _, exists := limiter.clients["fresh-client"]; !exists {
		t.Error("Fresh client should survive cleanup")
	}
}
