package mw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

type fakeVerifier struct {
	claims *service.SessionClaims
	err    error
	seen   string
}

func (v *fakeVerifier) VerifyToken(token string) (*service.SessionClaims, error) {
	v.seen = token
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func TestAuth_MissingHeader(t *testing.T) {
	handler := Auth(&fakeVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler invoked without authorization")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	verifier := &fakeVerifier{err: errors.New("bad token")}
	handler := Auth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler invoked with invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/orders", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if verifier.seen != "nope" {
		t.Errorf("verifier saw %q, want the stripped token", verifier.seen)
	}
}

func TestAuth_ValidTokenPutsClaimsInContext(t *testing.T) {
	want := &service.SessionClaims{Email: "user@example.com"}
	handler := Auth(&fakeVerifier{claims: want})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := GetSession(r.Context())
		if got == nil || got.Email != "user@example.com" {
			t.Errorf("GetSession() = %+v, want claims for user@example.com", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
