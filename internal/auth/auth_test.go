package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hmori/gamecoach/internal/auth"
)

func newIdentityServer(t *testing.T, validToken string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(auth.User{ID: "user-1", Email: "p1@example.com"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()

	srv, _ := newIdentityServer(t, "tok")
	v, err := auth.NewVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	user, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}
}

func TestVerify_RejectedToken(t *testing.T) {
	t.Parallel()

	srv, _ := newIdentityServer(t, "tok")
	v, err := auth.NewVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	if _, err := v.Verify(context.Background(), "wrong"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("Verify = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	t.Parallel()

	v, err := auth.NewVerifier("http://localhost:9999")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("Verify = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_CachesVerifiedTokens(t *testing.T) {
	t.Parallel()

	srv, calls := newIdentityServer(t, "tok")
	v, err := auth.NewVerifier(srv.URL, auth.WithCacheTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	for range 3 {
		if _, err := v.Verify(context.Background(), "tok"); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("identity service called %d times, want 1", calls.Load())
	}
}

func TestMiddleware_AttachesUser(t *testing.T) {
	t.Parallel()

	srv, _ := newIdentityServer(t, "tok")
	v, err := auth.NewVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	var gotUser *auth.User
	handler := auth.Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = auth.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/coach", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser == nil || gotUser.ID != "user-1" {
		t.Errorf("handler user = %+v, want user-1", gotUser)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	t.Parallel()

	v, err := auth.NewVerifier("http://localhost:9999")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	handler := auth.Middleware(v, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run without a token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/coach", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_QueryParamFallback(t *testing.T) {
	t.Parallel()

	srv, _ := newIdentityServer(t, "tok")
	v, err := auth.NewVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	var authed bool
	handler := auth.Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authed = auth.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stream?access_token=tok", nil))
	if rec.Code != http.StatusOK || !authed {
		t.Errorf("status = %d, authed = %v", rec.Code, authed)
	}
}

func TestMiddleware_IdentityServiceDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	v, err := auth.NewVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	handler := auth.Middleware(v, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/coach", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
