package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestLoginURLCarriesState(t *testing.T) {
	p := NewGoogleOAuth("client-1", "secret", "http://localhost/cb")
	u, err := url.Parse(p.LoginURL("xyz"))
	if err != nil {
		t.Fatalf("parse login url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "xyz" || q.Get("client_id") != "client-1" {
		t.Errorf("unexpected login query: %v", q)
	}
	if !p.Configured() {
		t.Error("expected provider with credentials to be configured")
	}
	if NewGoogleOAuth("", "", "").Configured() {
		t.Error("expected provider without credentials to be unconfigured")
	}
}

func TestFetchProfile(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"id":"g-1","name":"Alice","picture":"https://pic"}`, false},
		{"upstream error", http.StatusForbidden, `denied`, true},
		{"no id", http.StatusOK, `{"name":"Nobody"}`, true},
		{"garbage", http.StatusOK, `not json`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOAuthProvider("test", &oauth2.Config{}, srv.URL)
			info, err := p.fetchProfile(context.Background(), srv.Client())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", info)
				}
				return
			}
			if err != nil {
				t.Fatalf("fetch profile: %v", err)
			}
			if info.ID != "g-1" || info.Name != "Alice" {
				t.Errorf("unexpected profile: %+v", info)
			}
		})
	}
}
