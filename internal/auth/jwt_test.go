package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenPair(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123")
	pair, err := mgr.GenerateTokenPair("user-7")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatalf("expected two distinct tokens, got %+v", pair)
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("expires_in = %d, want 900", pair.ExpiresIn)
	}
	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		claims, err := mgr.ValidateToken(token)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if claims.UserID != "user-7" || claims.Subject != "user-7" {
			t.Errorf("claims name %q/%q, want user-7", claims.UserID, claims.Subject)
		}
	}
}

func TestValidateTokenRejects(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	foreign, _ := NewJWTManager("other-secret").GenerateAccessToken("user-1")
	expired, _ := (&JWTManager{secret: []byte("test-secret"), accessExpiry: -time.Second}).GenerateAccessToken("user-1")

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", foreign},
		{"expired", expired},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mgr.ValidateToken(tt.token); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestValidateUse(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	pair, err := mgr.GenerateTokenPair("user-3")
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		use     string
		wantErr error
	}{
		{"access as access", pair.AccessToken, UseAccess, nil},
		{"refresh as refresh", pair.RefreshToken, UseRefresh, nil},
		{"refresh as access", pair.RefreshToken, UseAccess, ErrWrongUse},
		{"access as refresh", pair.AccessToken, UseRefresh, ErrWrongUse},
		{"empty", "", UseAccess, ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := mgr.ValidateUse(tt.token, tt.use)
			if err != tt.wantErr {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && claims.UserID != "user-3" {
				t.Errorf("expected user-3, got %s", claims.UserID)
			}
		})
	}
}

func TestValidateTokenRejectsNoneAlgorithm(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "mallory", Use: UseAccess})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}
