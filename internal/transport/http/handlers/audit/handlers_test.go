package audithandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/transport/http/middleware"
)

type fakeAudit struct {
	lastFilter audit.Filter
	lastLimit  int
	details    bool
}

func (f *fakeAudit) Count(_ context.Context, filter audit.Filter) (int, error) {
	return 42, nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	f.details = includeDetails
	return []audit.Event{{
		ID: "ev1", ActorID: "u1", Action: "payroll.finalize", EntityType: "payroll_period", EntityID: "p1",
		CreatedAt: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
	}}, nil
}

func serve(h *Handler, session auth.Session, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), session)))
		})
	})
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

var admin = auth.Session{UserID: "u-admin", Role: auth.RoleSuperAdmin}

func TestListEvents(t *testing.T) {
	svc := &fakeAudit{}
	rec := serve(NewHandler(svc, nil), admin, "/audit/?action=payroll.finalize&limit=900&includeDetails=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, "payroll.finalize", svc.lastFilter.Action)
	assert.Equal(t, 500, svc.lastLimit)
	assert.True(t, svc.details)
}

func TestListEventsForbiddenForManagers(t *testing.T) {
	manager := auth.Session{UserID: "u-mgr", Role: auth.RoleBranchManager}
	rec := serve(NewHandler(&fakeAudit{}, nil), manager, "/audit/")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportEvents(t *testing.T) {
	rec := serve(NewHandler(&fakeAudit{}, nil), admin, "/audit/export")
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ev1,u1,payroll.finalize,payroll_period,p1,,,2025-04-02T09:00:00Z", lines[1])
}
