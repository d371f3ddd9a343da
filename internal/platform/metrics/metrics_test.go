package metrics

import (
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(500, 30*time.Millisecond)
	c.Record(429, 0)
	c.PayrollRun(12)
	c.Payslips(11, 1)

	snap := c.Snapshot()
	if snap["requestsTotal"].(uint64) != 3 {
		t.Fatalf("expected 3 requests, got %v", snap["requestsTotal"])
	}
	if snap["errorsTotal"].(uint64) != 1 || snap["rateLimitedTotal"].(uint64) != 1 {
		t.Fatalf("unexpected error counters %v", snap)
	}
	if snap["avgDurationMs"].(float64) != float64(40)/3 {
		t.Fatalf("unexpected avg %v", snap["avgDurationMs"])
	}
	if snap["payrollRecordsTotal"].(uint64) != 12 || snap["payslipsFailedTotal"].(uint64) != 1 {
		t.Fatalf("unexpected payroll counters %v", snap)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Record(200, time.Millisecond)
	c.PayrollRun(1)
	c.Payslips(1, 0)
}
