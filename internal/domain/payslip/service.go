package payslip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/platform/metrics"
)

type RecordSource interface {
	GetPeriod(ctx context.Context, id string) (payroll.Period, error)
	GetRecord(ctx context.Context, session auth.Session, periodID, employeeID string) (payroll.Record, error)
	ListRecords(ctx context.Context, session auth.Session, periodID, branchID string) ([]payroll.Record, error)
	ListRateTables(ctx context.Context) ([]payroll.RateTable, error)
}

type DirectorySource interface {
	Directory(ctx context.Context) (org.Directory, error)
}

// FileWriter persists rendered files, sealing them when configured.
type FileWriter interface {
	WriteFile(path string, data []byte) (string, error)
}

type Service struct {
	records    RecordSource
	directory  DirectorySource
	files      FileWriter
	storageDir string
	metrics    *metrics.Collector
	now        func() time.Time
}

func NewService(records RecordSource, directory DirectorySource, files FileWriter, storageDir string, collector *metrics.Collector) *Service {
	return &Service{
		records:    records,
		directory:  directory,
		files:      files,
		storageDir: storageDir,
		metrics:    collector,
		now:        time.Now,
	}
}

// Rendered is a finished PDF plus where it was stored, if it was.
type Rendered struct {
	PDF        []byte       `json:"-"`
	Filename   string       `json:"filename"`
	StoredPath string       `json:"storedPath,omitempty"`
	Pages      int          `json:"pages"`
	Errors     []BatchError `json:"errors,omitempty"`
}

func ratesFor(tables []payroll.RateTable, year int) payroll.RateTable {
	for _, t := range tables {
		if t.Year == year {
			return t
		}
	}
	return payroll.RateTable{Year: year}
}

func (s *Service) item(dir org.Directory, r payroll.Record) BatchItem {
	emp, ok := dir.Employee(r.EmployeeID)
	if !ok {
		emp = org.Employee{ID: r.EmployeeID, FullName: r.FullName, Position: r.Position}
	}
	return BatchItem{
		Record:   r,
		Employee: emp,
		Branch:   org.Branch{ID: r.BranchID, Name: dir.BranchName(r.BranchID)},
	}
}

// Single renders one employee's payslip for a period.
func (s *Service) Single(ctx context.Context, session auth.Session, periodID, employeeID string, store bool) (Rendered, error) {
	period, err := s.records.GetPeriod(ctx, periodID)
	if err != nil {
		return Rendered{}, err
	}
	record, err := s.records.GetRecord(ctx, session, periodID, employeeID)
	if err != nil {
		return Rendered{}, err
	}
	dir, err := s.directory.Directory(ctx)
	if err != nil {
		return Rendered{}, fmt.Errorf("load directory: %w", err)
	}
	tables, err := s.records.ListRateTables(ctx)
	if err != nil {
		return Rendered{}, fmt.Errorf("list rate tables: %w", err)
	}

	it := s.item(dir, record)
	doc := Project(it.Record, it.Employee, it.Branch, period, s.now()).WithRates(ratesFor(tables, record.RatesYear))
	pdf, err := RenderPDF(doc)
	if err != nil {
		s.metrics.Payslips(0, 1)
		return Rendered{}, err
	}
	s.metrics.Payslips(1, 0)

	out := Rendered{PDF: pdf, Pages: 1, Filename: fmt.Sprintf("payslip-%s-%s.pdf", ShortRef(employeeID), ShortRef(periodID))}
	if store {
		if out.StoredPath, err = s.save(periodID, out.Filename, pdf); err != nil {
			return Rendered{}, err
		}
	}
	return out, nil
}

// Batch renders every record in scope into one PDF.
func (s *Service) Batch(ctx context.Context, session auth.Session, periodID, branchID string, store bool) (Rendered, error) {
	period, err := s.records.GetPeriod(ctx, periodID)
	if err != nil {
		return Rendered{}, err
	}
	records, err := s.records.ListRecords(ctx, session, periodID, branchID)
	if err != nil {
		return Rendered{}, err
	}
	dir, err := s.directory.Directory(ctx)
	if err != nil {
		return Rendered{}, fmt.Errorf("load directory: %w", err)
	}
	tables, err := s.records.ListRateTables(ctx)
	if err != nil {
		return Rendered{}, fmt.Errorf("list rate tables: %w", err)
	}

	generatedAt := s.now()
	byYear := map[int][]BatchItem{}
	for _, r := range records {
		byYear[r.RatesYear] = append(byYear[r.RatesYear], s.item(dir, r))
	}
	var docs []Document
	var failures []BatchError
	for _, r := range records {
		items, ok := byYear[r.RatesYear]
		if !ok {
			continue
		}
		delete(byYear, r.RatesYear)
		projected, errs := ProjectAll(ctx, items, period, generatedAt, ratesFor(tables, r.RatesYear))
		docs = append(docs, projected...)
		failures = append(failures, errs...)
	}

	pdf, renderErrs, err := RenderBatch(docs)
	if err != nil {
		return Rendered{}, err
	}
	failures = append(failures, renderErrs...)
	for _, f := range failures {
		slog.Warn("payslip skipped", "periodId", periodID, "employeeId", f.EmployeeID, "err", f.Err)
	}
	pages := len(docs) - len(renderErrs)
	s.metrics.Payslips(pages, len(failures))

	name := fmt.Sprintf("payslips-%s.pdf", ShortRef(periodID))
	if branchID != "" {
		name = fmt.Sprintf("payslips-%s-%s.pdf", ShortRef(periodID), ShortRef(branchID))
	}
	out := Rendered{PDF: pdf, Filename: name, Pages: pages, Errors: failures}
	if store {
		if out.StoredPath, err = s.save(periodID, name, pdf); err != nil {
			return Rendered{}, err
		}
	}
	return out, nil
}

func (s *Service) save(periodID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.storageDir, periodID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create payslip dir: %w", err)
	}
	path, err := s.files.WriteFile(filepath.Join(dir, filename), data)
	if err != nil {
		return "", fmt.Errorf("store payslip: %w", err)
	}
	return path, nil
}
