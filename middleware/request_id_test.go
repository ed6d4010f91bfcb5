package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		ctxID, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"existing id", "existing-request-id-123", true},
		{"too long", string(make([]byte, 65)), false},
		{"unsafe characters", "abc\r\ninjected: 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.incoming != "" {
				req.Header["X-Request-Id"] = []string{tt.incoming}
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if tt.keep {
				if got != tt.incoming {
					t.Errorf("Expected request ID %q, got %q", tt.incoming, got)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("Expected generated UUID, got %q", got)
			}
			if ctxID != got {
				t.Errorf("Expected request context to carry %q, got %q", got, ctxID)
			}
		})
	}
}

func TestGetRequestID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetRequestID(c) != "" {
		t.Error("Expected empty request ID")
	}
	c.Set("request_id", "abc")
	if GetRequestID(c) != "abc" {
		t.Errorf("Expected 'abc', got %q", GetRequestID(c))
	}
}
