package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fetchflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, key []byte) string {
	t.Helper()
	claims := service.UserClaims{
		UserID:   "1001",
		Username: "ops",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTMiddleware_ConfiguredKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	key := []byte("rotated-signing-key")

	r := gin.New()
	r.Use(JWTMiddleware(false, key))
	r.GET("/protected", func(c *gin.Context) {
		op := service.GetOperatorInfo(c.Request.Context())
		if op == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, op.Name)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token should pass, got %d", w.Code)
	}
	if w.Body.String() != "ops" {
		t.Errorf("operator should come from token claims, got %q", w.Body.String())
	}

	// signed with a different key
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("stale-key")))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("token signed with another key should be rejected, got %d", w.Code)
	}

	// no token at all
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/protected", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token should be rejected, got %d", w.Code)
	}
}
