package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier(testSecret, "vehicle-vision")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expires := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		subject string
	}{
		{
			name:    "valid",
			token:   signToken(t, jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"vehicle-vision"}, ExpiresAt: expires}, jwt.SigningMethodHS256, testSecret),
			subject: "user-1",
		},
		{
			name:  "wrong audience",
			token: signToken(t, jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"other"}, ExpiresAt: expires}, jwt.SigningMethodHS256, testSecret),
		},
		{
			name:  "wrong secret",
			token: signToken(t, jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"vehicle-vision"}, ExpiresAt: expires}, jwt.SigningMethodHS256, "nope"),
		},
		{
			name:  "expired",
			token: signToken(t, jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"vehicle-vision"}, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}, jwt.SigningMethodHS256, testSecret),
		},
		{
			name:  "missing subject",
			token: signToken(t, jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"vehicle-vision"}, ExpiresAt: expires}, jwt.SigningMethodHS256, testSecret),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := v.Verify(tt.token)
			if tt.subject == "" {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("expected unauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if subject != tt.subject {
				t.Fatalf("expected subject %q, got %q", tt.subject, subject)
			}
		})
	}
}

func TestMiddlewareInjectsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, _ := NewVerifier(testSecret, "")

	router := gin.New()
	router.Use(v.Middleware())
	router.GET("/me", func(c *gin.Context) {
		id, ok := GetUserID(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	token := signToken(t, jwt.RegisteredClaims{Subject: "user-42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}, jwt.SigningMethodHS256, testSecret)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "user-42" {
		t.Fatalf("unexpected response: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		if _, err := ExtractBearerToken(header); err == nil {
			t.Fatalf("expected error for %q", header)
		}
	}
	if token, err := ExtractBearerToken("bearer abc.def"); err != nil || token != "abc.def" {
		t.Fatalf("unexpected result: %q %v", token, err)
	}
}
