package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/franklinjsmith-create/SupplyVerify/config"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:        "test-secret-key",
		TokenExpireHours: 24,
	}
}

func TestGenerateToken(t *testing.T) {
	cfg := testAuthConfig()

	token, expiresAt, err := GenerateToken("testuser", cfg)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	claims, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("Failed to parse generated token: %v", err)
	}
	if claims.Username != "testuser" || claims.Subject != "testuser" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testAuthConfig()

	token, _, err := GenerateToken("testuser", cfg)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	otherSecret, _, _ := GenerateToken("testuser", &config.AuthConfig{JWTSecret: "other", TokenExpireHours: 1})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", token, http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotCtxUser string
			router := gin.New()
			router.Use(AuthMiddleware(cfg))
			router.GET("/test", func(c *gin.Context) {
				gotUser = GetUsername(c)
				gotCtxUser, _ = c.Request.Context().Value(logger.UsernameKey).(string)
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK && (gotUser != "testuser" || gotCtxUser != "testuser") {
				t.Errorf("Expected username in gin and request context, got %q and %q", gotUser, gotCtxUser)
			}
		})
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	cfg := testAuthConfig()

	claims := Claims{
		Username: "testuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))

	router := gin.New()
	router.Use(AuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d for expired token, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestParseTokenRejectsForeignIssuer(t *testing.T) {
	cfg := testAuthConfig()
	claims := Claims{
		Username: "testuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))

	if _, err := ParseToken(tokenString, cfg); err == nil {
		t.Error("Expected foreign issuer to be rejected")
	}
}

func TestGetUsername(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUsername(c) != "" {
		t.Error("Expected empty string for unset username")
	}

	c.Set("username", "testuser")
	if GetUsername(c) != "testuser" {
		t.Errorf("Expected 'testuser', got '%s'", GetUsername(c))
	}
}
