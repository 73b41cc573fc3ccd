package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func protected(t *testing.T, hash string) http.Handler {
	t.Helper()
	return RequireAdminToken(hash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, IsAdminRequest(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAdminToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name  string
		hash  string
		token string
		want  int
	}{
		{"valid token", string(hash), "s3cret", http.StatusNoContent},
		{"wrong token", string(hash), "guess", http.StatusUnauthorized},
		{"missing token", string(hash), "", http.StatusUnauthorized},
		{"no hash configured", "", "s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/portfolios/1/execute", nil)
			if tt.token != "" {
				req.Header.Set(HeaderAdminToken, tt.token)
			}
			rr := httptest.NewRecorder()

			protected(t, tt.hash).ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestHashTokenRoundTrip(t *testing.T) {
	hash, err := HashToken("operator")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("operator")))
	assert.False(t, IsAdminRequest(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
