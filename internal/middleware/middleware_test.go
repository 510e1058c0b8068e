package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/warcore/internal/logger"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		wantStatus int
		wantCalled bool
	}{
		{"simple request", http.MethodGet, http.StatusOK, true},
		{"update", http.MethodPatch, http.StatusOK, true},
		{"preflight", http.MethodOptions, http.StatusNoContent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			rec := httptest.NewRecorder()
			CORS("https://example.com")(inner).ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/users/me", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("inner called = %v, want %v", called, tt.wantCalled)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
				t.Errorf("allow origin = %q", got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, tt.method) {
				t.Errorf("allow methods %q lacks %s", got, tt.method)
			}
			if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
				t.Errorf("allow headers %q lacks Authorization", got)
			}
		})
	}
}

func TestJSONContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) })
	JSON(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestLoggerKeepsRequestAndStatus(t *testing.T) {
	var body string
	var requestID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		requestID = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/games?token=secret", strings.NewReader(`{"name":"x"}`))
	Logger(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if body != `{"name":"x"}` {
		t.Errorf("inner read body %q after logging", body)
	}
	if len(requestID) != 8 {
		t.Errorf("request ID %q, want 8 characters", requestID)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "mw1-before")
			next.ServeHTTP(w, r)
			order = append(order, "mw1-after")
		})
	}
	mw2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "mw2-before")
			next.ServeHTTP(w, r)
			order = append(order, "mw2-after")
		})
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	handler := Chain(inner, mw1, mw2)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d]: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestGameIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/games/g-1/battles", "g-1"},
		{"/api/v1/games/g-2", "g-2"},
		{"/api/v1/games", ""},
		{"/auth/google/login", ""},
	}
	for _, tt := range tests {
		if got := gameIDFromPath(tt.path); got != tt.want {
			t.Errorf("gameIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoggerStoresGameID(t *testing.T) {
	var gameID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gameID = logger.GameIDFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/games/g-9/battles", nil)
	Logger(inner).ServeHTTP(httptest.NewRecorder(), req)
	if gameID != "g-9" {
		t.Errorf("expected g-9 in context, got %q", gameID)
	}
}

func TestRecovererReturns500(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	Recoverer(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
