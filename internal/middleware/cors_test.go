package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowedOrigins_MergesDefaultsAndExtra(t *testing.T) {
	origins := AllowedOrigins([]string{" https://shop.example ", ""})

	assert.Contains(t, origins, "http://localhost:3000")
	assert.Contains(t, origins, "https://shop.example")
	assert.NotContains(t, origins, "")
	assert.Len(t, defaultOrigins, 4)
}

func TestCORS_ReflectsOnlyAllowedOrigins(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://shop.example"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Act
	allowed := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://shop.example")
	router.ServeHTTP(allowed, req)

	denied := httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(denied, req)

	preflight := httptest.NewRecorder()
	router.ServeHTTP(preflight, httptest.NewRequest("OPTIONS", "/ping", nil))

	// Assert
	assert.Equal(t, "https://shop.example", allowed.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, preflight.Code)
}
