package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"branchpay/internal/domain/auth"
	"branchpay/internal/platform/metrics"
)

type stubValidator struct{ err error }

func (s stubValidator) Validate(context.Context, auth.Session) error { return s.err }

type stubPerms map[string]bool

func (s stubPerms) HasPermission(_ context.Context, roleID, permission string) (bool, error) {
	return s[roleID+":"+permission], nil
}

func bearer(t *testing.T, secret string, claims auth.Claims) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return "Bearer " + token
}

func TestAuthMiddlewareSetsSession(t *testing.T) {
	secret := "test-secret"
	var got auth.Session
	handler := Auth(secret, stubValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected session in context")
		}
		got = session
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, secret, auth.Claims{UserID: "u1", RoleName: auth.RoleBranchManager, BranchIDs: []string{"b1"}}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID != "u1" || got.Role != auth.RoleBranchManager || len(got.BranchIDs) != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	secret := "test-secret"
	handler := Auth(secret, stubValidator{err: errors.New("revoked")})(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, secret, auth.Claims{UserID: "u1"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	perms := stubPerms{"r-admin:" + auth.PermPayrollRun: true}

	cases := []struct {
		name    string
		session *auth.Session
		store   PermissionStore
		want    int
	}{
		{"anonymous", nil, perms, http.StatusUnauthorized},
		{"granted by store", &auth.Session{RoleID: "r-admin"}, perms, http.StatusNoContent},
		{"denied by store", &auth.Session{RoleID: "r-manager"}, perms, http.StatusForbidden},
		{"builtin table", &auth.Session{Role: auth.RoleSuperAdmin}, nil, http.StatusNoContent},
		{"builtin table denies manager", &auth.Session{Role: auth.RoleBranchManager}, nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.session != nil {
				req = req.WithContext(WithUser(req.Context(), *tc.session))
			}
			rec := httptest.NewRecorder()
			RequirePermission(auth.PermPayrollRun, tc.store)(ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMetricsMiddlewareCountsStatus(t *testing.T) {
	collector := metrics.New()
	handler := Metrics(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	snap := collector.Snapshot()
	if snap["requestsTotal"].(uint64) != 1 || snap["errorsTotal"].(uint64) != 1 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestRequestHashStable(t *testing.T) {
	if RequestHash([]byte("p1")) != RequestHash([]byte("p1")) || RequestHash([]byte("p1")) == RequestHash([]byte("p2")) {
		t.Fatal("request hash must be deterministic and payload sensitive")
	}
}
