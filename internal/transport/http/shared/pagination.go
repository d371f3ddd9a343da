package shared

import (
	"net/http"
	"strconv"
)

// Pagination is a limit/offset window. A zero Limit means no limit.
type Pagination struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	p := Pagination{Limit: defaultLimit}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	if maxLimit > 0 && (p.Limit == 0 || p.Limit > maxLimit) {
		p.Limit = maxLimit
	}
	return p
}

// Page cuts an already sorted, fully loaded list down to the window and
// sets X-Total-Count to the full length.
func Page[T any](w http.ResponseWriter, items []T, p Pagination) []T {
	w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
	if p.Offset >= len(items) {
		return items[:0]
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
