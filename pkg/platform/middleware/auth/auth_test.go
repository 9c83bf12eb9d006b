package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()

	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		assert.Equal(t, userID.String(), requestcontext.UserID(r.Context()).String())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		header    string
		validator JWTValidator
		status    int
	}{
		{name: "valid token", header: "Bearer good", validator: stubValidator{claims: &JWTClaims{UserID: userID.String()}}, status: http.StatusNoContent},
		{name: "missing header", header: "", validator: stubValidator{}, status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", validator: stubValidator{}, status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", validator: stubValidator{err: dErrors.New(dErrors.CodeUnauthorized, "invalid token")}, status: http.StatusUnauthorized},
		{name: "subject not a user", header: "Bearer odd", validator: stubValidator{claims: &JWTClaims{UserID: "robot"}}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, "/v1/voice/state", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			RequireAuth(tt.validator, logger)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.status == http.StatusNoContent, reached)
		})
	}
}
