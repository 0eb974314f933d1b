package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"insight/pkg/requestcontext"
	"insight/pkg/testutil"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = requestcontext.Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	testutil.Given(t, "a valid token", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &JWTClaims{Subject: "gmail-collector"}}, logger)(next)
		req := testutil.NewRequest(t, http.MethodPost, "/ingest/email")
		req.Header.Set("Authorization", "Bearer good")

		rr := testutil.DoRequest(h, req)
		testutil.Then(t, "the subject reaches the handler", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusNoContent)
			assert.Equal(t, "gmail-collector", gotSubject)
		})
	})

	testutil.Given(t, "no Authorization header", func(t *testing.T) {
		h := RequireAuth(stubValidator{}, logger)(next)
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/ingest/email"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "a rejected token", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("bad signature")}, logger)(next)
		req := testutil.NewRequest(t, http.MethodPost, "/ingest/email")
		req.Header.Set("Authorization", "Bearer bad")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "no validator configured", func(t *testing.T) {
		h := RequireAuth(nil, logger)(next)
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/ingest/email"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}
