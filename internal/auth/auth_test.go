package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateAccessToken("ops", true, 0)
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.True(t, claims.IsAdmin)
}

func TestJWTManager_Rejections(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	other := NewJWTManager("other-secret", time.Hour)

	token, err := other.GenerateAccessToken("ops", true, 0)
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateAccessToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := NewJWTManager("test-secret", time.Hour)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.GenerateAccessToken("ops", true, time.Minute)
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	empty := NewJWTManager("", time.Hour)
	_, err = empty.GenerateAccessToken("ops", true, 0)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("test-secret", time.Hour)

	r := gin.New()
	admin := r.Group("/admin", Middleware(m), RequireAdmin())
	admin.POST("/review", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetSubject(c)})
	})

	adminToken, err := m.GenerateAccessToken("ops", true, 0)
	require.NoError(t, err)
	viewerToken, err := m.GenerateAccessToken("viewer", false, 0)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"not admin", "Bearer " + viewerToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/review", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
