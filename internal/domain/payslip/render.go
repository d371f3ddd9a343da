package payslip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/sync/errgroup"

	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
)

var errNotProjected = errors.New("payslip document is empty")

// BatchError records one employee whose page could not be produced.
type BatchError struct {
	EmployeeID string `json:"employeeId"`
	Err        error  `json:"-"`
}

func (e BatchError) Error() string {
	return fmt.Sprintf("employee %s: %v", e.EmployeeID, e.Err)
}

func (e BatchError) Unwrap() error {
	return e.Err
}

type BatchItem struct {
	Record   payroll.Record
	Employee org.Employee
	Branch   org.Branch
}

// ProjectAll projects items concurrently, at most GOMAXPROCS at a time.
// Output order follows items; an item that panics is reported instead of
// projected.
func ProjectAll(ctx context.Context, items []BatchItem, period payroll.Period, generatedAt time.Time, rates payroll.RateTable) ([]Document, []BatchError) {
	docs := make([]*Document, len(items))
	failures := make([]*BatchError, len(items))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					failures[i] = &BatchError{EmployeeID: item.Record.EmployeeID, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := ctx.Err(); err != nil {
				failures[i] = &BatchError{EmployeeID: item.Record.EmployeeID, Err: err}
				return nil
			}
			doc := Project(item.Record, item.Employee, item.Branch, period, generatedAt).WithRates(rates)
			docs[i] = &doc
			return nil
		})
	}
	_ = g.Wait()

	var out []Document
	var errs []BatchError
	for i := range items {
		if failures[i] != nil {
			errs = append(errs, *failures[i])
			continue
		}
		out = append(out, *docs[i])
	}
	return out, errs
}

func newPDF() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 16, 18)
	pdf.SetAutoPageBreak(false, 16)
	pdf.SetTitle(Title, false)
	pdf.SetCreator("branchpay", false)
	return pdf
}

// RenderPDF renders a single payslip.
func RenderPDF(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, errNotProjected
	}
	pdf := newPDF()
	draw(pdf, pdf.UnicodeTranslatorFromDescriptor(""), doc)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render payslip: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderBatch renders one page per document into a single PDF. A document
// that fails is skipped and reported; the rest are still rendered.
func RenderBatch(docs []Document) ([]byte, []BatchError, error) {
	pdf, failures := composeBatch(docs)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, failures, fmt.Errorf("render payslip batch: %w", err)
	}
	return buf.Bytes(), failures, nil
}

func composeBatch(docs []Document) (*gofpdf.Fpdf, []BatchError) {
	pdf := newPDF()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	var failures []BatchError
	for _, doc := range docs {
		if err := renderPage(pdf, tr, doc); err != nil {
			failures = append(failures, BatchError{EmployeeID: doc.EmployeeID, Err: err})
		}
	}
	if pdf.PageCount() == 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 10, "No payslips could be produced for this selection.", "", 1, "C", false, 0, "")
	}
	return pdf, failures
}

// renderPage draws doc on a scratch document first. gofpdf errors are
// sticky and a failed draw leaves a partial page, so only documents that
// draw cleanly reach the batch.
func renderPage(pdf *gofpdf.Fpdf, tr func(string) string, doc Document) error {
	if doc.Title == "" {
		return errNotProjected
	}
	scratch := newPDF()
	if err := drawChecked(scratch, scratch.UnicodeTranslatorFromDescriptor(""), doc); err != nil {
		return err
	}
	return drawChecked(pdf, tr, doc)
}

var draw = drawPage

func drawChecked(pdf *gofpdf.Fpdf, tr func(string) string, doc Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	draw(pdf, tr, doc)
	return pdf.Error()
}

const (
	labelWidth = 124.0
	rowHeight  = 7.0
)

func drawPage(pdf *gofpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.AddPage()
	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	width := pageWidth - left - right

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(doc.PeriodName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(doc.PeriodRange), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	boxTop := pdf.GetY()
	pdf.SetFillColor(242, 242, 242)
	pdf.Rect(left, boxTop, width, 26, "F")
	pdf.SetXY(left+4, boxTop+3)
	details := [][2]string{
		{"Employee", doc.EmployeeName},
		{"Position", doc.Position},
		{"Branch", doc.Branch},
		{"Employee ID", doc.EmployeeRef},
	}
	for _, d := range details {
		pdf.SetX(left + 4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(32, 5, tr(d[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 5, tr(d[1]), "", 1, "L", false, 0, "")
	}
	pdf.SetY(boxTop + 30)

	section(pdf, tr, "EARNINGS", doc.Earnings, &doc.Gross)
	section(pdf, tr, "STATUTORY DEDUCTIONS", doc.Statutory, &doc.StatutoryTotal)
	if len(doc.Other) > 0 {
		section(pdf, tr, "OTHER DEDUCTIONS", doc.Other, doc.OtherTotal)
	}

	pdf.Ln(2)
	netTop := pdf.GetY()
	pdf.SetFillColor(31, 78, 120)
	pdf.Rect(left, netTop, width, 14, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(left+4, netTop+3)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(labelWidth-4, 8, tr(doc.Net.Label), "", 0, "L", false, 0, "")
	pdf.CellFormat(width-labelWidth-4, 8, tr(doc.Net.Amount), "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetY(netTop + 20)

	if doc.Comments != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Comments", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(doc.Comments), "", "L", false)
	}

	pdf.SetY(-34)
	pdf.SetDrawColor(180, 180, 180)
	pdf.Line(left, pdf.GetY(), left+width, pdf.GetY())
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "I", 8)
	for _, f := range doc.Footer {
		pdf.MultiCell(0, 4, tr(f), "", "L", false)
	}
	pdf.CellFormat(0, 5, tr("Generated "+doc.GeneratedAt.Format("02 Jan 2006 15:04")), "", 1, "R", false, 0, "")
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string, lines []Line, total *Line) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, tr(title), "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range lines {
		pdf.CellFormat(labelWidth, rowHeight, tr(l.Label), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, rowHeight, tr(l.Amount), "", 1, "R", false, 0, "")
	}
	if total != nil {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(labelWidth, rowHeight, tr(total.Label), "T", 0, "L", false, 0, "")
		pdf.CellFormat(0, rowHeight, tr(total.Amount), "T", 1, "R", false, 0, "")
	}
	pdf.Ln(3)
}
