package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authedHandler(apiKeys []string) http.Handler {
	mw := BearerAuthMiddleware(apiKeys)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestBearerAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		apiKeys    []string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid key", []string{"secret"}, "/search", "Bearer secret", http.StatusOK},
		{"invalid key", []string{"secret"}, "/search", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", []string{"secret"}, "/search", "", http.StatusUnauthorized},
		{"wrong scheme", []string{"secret"}, "/search", "Basic c2VjcmV0", http.StatusUnauthorized},
		{"no keys disables auth", nil, "/search", "", http.StatusOK},
		{"empty keys disable auth", []string{""}, "/search", "", http.StatusOK},
		{"healthz exempt", []string{"secret"}, "/healthz", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
		{"second key accepted", []string{"a", "b"}, "/search", "Bearer b", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := authedHandler(tt.apiKeys)

			req := httptest.NewRequest("GET", tt.path, http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
