package payslip

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/crypto"
	"branchpay/internal/platform/metrics"
)

type fakeRecords struct {
	period  payroll.Period
	records []payroll.Record
}

func (f fakeRecords) GetPeriod(_ context.Context, id string) (payroll.Period, error) {
	if id != f.period.ID {
		return payroll.Period{}, payroll.ErrPeriodNotFound
	}
	return f.period, nil
}

func (f fakeRecords) GetRecord(_ context.Context, _ auth.Session, _, employeeID string) (payroll.Record, error) {
	for _, r := range f.records {
		if r.EmployeeID == employeeID {
			return r, nil
		}
	}
	return payroll.Record{}, payroll.ErrRecordNotFound
}

func (f fakeRecords) ListRecords(_ context.Context, _ auth.Session, _, branchID string) ([]payroll.Record, error) {
	var out []payroll.Record
	for _, r := range f.records {
		if branchID == "" || r.BranchID == branchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f fakeRecords) ListRateTables(context.Context) ([]payroll.RateTable, error) {
	return []payroll.RateTable{testRates()}, nil
}

type fakeDirectory struct {
	dir org.Directory
}

func (f fakeDirectory) Directory(context.Context) (org.Directory, error) {
	return f.dir, nil
}

func newTestService(t *testing.T) (*Service, *metrics.Collector, string) {
	t.Helper()
	e1 := testEmployee()
	e1.ID = "e1-aaaaaaaa"
	e2 := testEmployee()
	e2.ID = "e2-bbbbbbbb"
	e2.FullName = "Bwalya Mulenga"
	e2.BranchID = "b2"

	src := fakeRecords{
		period: testPeriod,
		records: []payroll.Record{
			payroll.Compute(e1, nil, testRates(), payroll.Adjustments{}),
			payroll.Compute(e2, nil, testRates(), payroll.Adjustments{}),
		},
	}
	dir := org.NewDirectory([]org.Branch{testBranch, {ID: "b2", Name: "Kabwata"}}, []org.Employee{e1, e2})
	files, err := crypto.New("")
	require.NoError(t, err)

	collector := metrics.New()
	storage := t.TempDir()
	svc := NewService(src, fakeDirectory{dir: dir}, files, storage, collector)
	svc.now = func() time.Time { return generated }
	return svc, collector, storage
}

var admin = auth.Session{UserID: "u1", Role: auth.RoleSuperAdmin}

func TestSingleRendersAndStores(t *testing.T) {
	svc, collector, storage := newTestService(t)

	out, err := svc.Single(context.Background(), admin, testPeriod.ID, "e1-aaaaaaaa", true)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out.PDF, []byte("%PDF")))
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, "payslip-E1-AAAAA-PERIOD-1.pdf", out.Filename)
	assert.Equal(t, filepath.Join(storage, testPeriod.ID, out.Filename), out.StoredPath)

	stored, err := os.ReadFile(out.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, out.PDF, stored)
	assert.EqualValues(t, 1, collector.Snapshot()["payslipsRenderedTotal"])
}

func TestSingleUnknownRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Single(context.Background(), admin, testPeriod.ID, "nobody", false)
	assert.ErrorIs(t, err, payroll.ErrRecordNotFound)
}

func TestBatchRendersBranchScope(t *testing.T) {
	svc, collector, _ := newTestService(t)

	all, err := svc.Batch(context.Background(), admin, testPeriod.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Pages)
	assert.Empty(t, all.Errors)
	assert.Empty(t, all.StoredPath)
	assert.Equal(t, "payslips-PERIOD-1.pdf", all.Filename)

	one, err := svc.Batch(context.Background(), admin, testPeriod.ID, "b2", false)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Pages)
	assert.Equal(t, "payslips-PERIOD-1-B2.pdf", one.Filename)
	assert.EqualValues(t, 3, collector.Snapshot()["payslipsRenderedTotal"])
}
