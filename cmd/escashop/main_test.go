package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"bearer", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"missing token", "Bearer", ""},
		{"extra parts", "Bearer abc 123", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := bearerToken(tc.header); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSessionIDFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/realtime/info", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: "escashop_session", Value: "cookie-token"})
	if got := sessionIDFromRequest(r); got != "header-token" {
		t.Fatalf("expected bearer token to win, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/realtime/info", nil)
	r.AddCookie(&http.Cookie{Name: "escashop_session", Value: "cookie-token"})
	if got := sessionIDFromRequest(r); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/realtime/info?session_id=query-token", nil)
	if got := sessionIDFromRequest(r); got != "query-token" {
		t.Fatalf("expected query token, got %q", got)
	}

	if got := sessionIDFromRequest(nil); got != "" {
		t.Fatalf("expected empty for nil request, got %q", got)
	}
}

func TestUntilNextHour(t *testing.T) {
	now := time.Date(2025, 6, 9, 10, 30, 0, 0, time.UTC)

	if got := untilNextHour(now, 21); got != 10*time.Hour+30*time.Minute {
		t.Fatalf("expected 10h30m, got %v", got)
	}
	// Hour already passed today rolls to tomorrow.
	if got := untilNextHour(now, 9); got != 22*time.Hour+30*time.Minute {
		t.Fatalf("expected 22h30m, got %v", got)
	}
	// Exactly at the boundary schedules the next day.
	exact := time.Date(2025, 6, 9, 21, 0, 0, 0, time.UTC)
	if got := untilNextHour(exact, 21); got != 24*time.Hour {
		t.Fatalf("expected 24h, got %v", got)
	}
}
