package api

import (
	"net/http"
	"strconv"
)

// Page holds parsed limit/offset query values.
type Page struct {
	Limit  int
	Offset int
}

// ListResponse wraps a page of items with the total count.
type ListResponse struct {
	Data   any `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parsePage reads limit and offset, or page when offset is absent, with
// defaults. maxLimit caps the page size.
func parsePage(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil {
		page, _ := strconv.Atoi(q.Get("page"))
		if page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
