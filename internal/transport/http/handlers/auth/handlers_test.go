package authhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/auth"
	"branchpay/internal/transport/http/middleware"
)

type fakeService struct {
	loginErr  error
	loggedOut bool
}

func (f *fakeService) Login(_ context.Context, email, password, _ string) (auth.LoginResult, error) {
	if f.loginErr != nil {
		return auth.LoginResult{}, f.loginErr
	}
	return auth.LoginResult{Token: "tok", DisplayName: "Admin", Session: auth.Session{UserID: "u1", Email: email, Role: auth.RoleSuperAdmin}}, nil
}

func (f *fakeService) Logout(context.Context, auth.Session) error {
	f.loggedOut = true
	return nil
}

func (f *fakeService) SetupMFA(context.Context, auth.Session) (auth.MFASetup, error) {
	return auth.MFASetup{Secret: "S", URL: "otpauth://x"}, nil
}

func (f *fakeService) EnableMFA(_ context.Context, _ auth.Session, code string) error {
	if code != "123456" {
		return auth.ErrMFAInvalid
	}
	return nil
}

func router(svc Service, session *auth.Session) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if session != nil {
				req = req.WithContext(middleware.WithUser(req.Context(), *session))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.RegisterPublic(r)
	h.RegisterRoutes(r)
	return r
}

func TestLogin(t *testing.T) {
	svc := &fakeService{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"a@b.c","password":"pw"}`))
	router(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "tok", env.Data.Token)
}

func TestLoginFailures(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
		want int
	}{
		"bad json":     {`{`, nil, http.StatusBadRequest},
		"missing":      {`{"email":""}`, nil, http.StatusBadRequest},
		"bad password": {`{"email":"a@b.c","password":"x"}`, auth.ErrInvalidCredentials, http.StatusUnauthorized},
		"mfa required": {`{"email":"a@b.c","password":"x"}`, auth.ErrMFARequired, http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(tc.body))
			router(&fakeService{loginErr: tc.err}, nil).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMFAEnableAndLogout(t *testing.T) {
	svc := &fakeService{}
	session := &auth.Session{UserID: "u1", SessionID: "s1"}

	rec := httptest.NewRecorder()
	router(svc, session).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/mfa/enable", bytes.NewBufferString(`{"code":"000000"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router(svc, session).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/mfa/enable", bytes.NewBufferString(`{"code":"123456"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router(svc, session).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.loggedOut)
}
