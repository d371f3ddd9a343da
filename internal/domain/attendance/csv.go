package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVRow is one parsed data row; Row is 1-based and excludes the header.
type CSVRow struct {
	Row     int
	LogDate string
	Entry   Entry
}

var csvAliases = map[string]string{
	"date":         "log_date",
	"employee":     "employee_id",
	"shortage":     "shortage_amount",
	"advance":      "advance_amount",
	"fine":         "fine_amount",
	"extra_shifts": "extra_shifts_worked",
	"arrival":      "arrival_time",
}

// ParseCSV reads attendance rows. Headers are matched case-insensitively;
// employee_id, log_date and status are required.
func ParseCSV(r io.Reader) ([]CSVRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	index := map[string]int{}
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if alias, ok := csvAliases[key]; ok {
			key = alias
		}
		index[key] = i
	}
	for _, required := range []string{"employee_id", "log_date", "status"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidCSV, required)
		}
	}

	get := func(row []string, key string) string {
		if idx, ok := index[key]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}
	optional := func(row []string, key string) any {
		if v := get(row, key); v != "" {
			return v
		}
		return nil
	}

	var out []CSVRow
	for n := 1; ; n++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidCSV, n, err)
		}
		out = append(out, CSVRow{
			Row:     n,
			LogDate: get(row, "log_date"),
			Entry: Entry{
				EmployeeID:        get(row, "employee_id"),
				Status:            get(row, "status"),
				LeaveType:         get(row, "leave_type"),
				ArrivalTime:       get(row, "arrival_time"),
				ShortageAmount:    optional(row, "shortage_amount"),
				AdvanceAmount:     optional(row, "advance_amount"),
				FineAmount:        optional(row, "fine_amount"),
				ExtraShiftsWorked: optional(row, "extra_shifts_worked"),
				Comments:          get(row, "comments"),
			},
		})
	}
	return out, nil
}
