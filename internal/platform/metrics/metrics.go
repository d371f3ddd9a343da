package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   atomic.Uint64
	errorRequests   atomic.Uint64
	rateLimited     atomic.Uint64
	totalDurationMs atomic.Uint64
	payrollRuns     atomic.Uint64
	payrollRecords  atomic.Uint64
	payslipsOK      atomic.Uint64
	payslipsFailed  atomic.Uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.totalRequests.Add(1)
	if status >= 500 {
		c.errorRequests.Add(1)
	}
	if status == 429 {
		c.rateLimited.Add(1)
	}
	c.totalDurationMs.Add(uint64(duration.Milliseconds()))
}

// PayrollRun counts one completed generation and the records it wrote.
func (c *Collector) PayrollRun(records int) {
	if c == nil {
		return
	}
	c.payrollRuns.Add(1)
	c.payrollRecords.Add(uint64(records))
}

func (c *Collector) Payslips(rendered, failed int) {
	if c == nil {
		return
	}
	c.payslipsOK.Add(uint64(rendered))
	c.payslipsFailed.Add(uint64(failed))
}

func (c *Collector) Snapshot() map[string]any {
	total := c.totalRequests.Load()
	totalMs := c.totalDurationMs.Load()
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":         total,
		"errorsTotal":           c.errorRequests.Load(),
		"rateLimitedTotal":      c.rateLimited.Load(),
		"avgDurationMs":         avg,
		"totalDurationMs":       totalMs,
		"payrollRunsTotal":      c.payrollRuns.Load(),
		"payrollRecordsTotal":   c.payrollRecords.Load(),
		"payslipsRenderedTotal": c.payslipsOK.Load(),
		"payslipsFailedTotal":   c.payslipsFailed.Load(),
	}
}
