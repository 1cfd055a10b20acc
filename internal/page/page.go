// Package page slices an already-fetched, already-sorted window of records
// into pages. It never reaches back to the remote provider: callers fetch a
// bounded window (the 50 most recent records) once per request and hand it
// here, which keeps the gateway under the provider's rate limits at the cost
// of total/total_pages reflecting only the window, not the provider's real
// history. That tradeoff is deliberate and callers surface it as-is.
package page

const (
	DefaultPerPage = 10
	MaxPerPage     = 50
)

// Page is the computed result of slicing a window. It is recomputed from a
// fresh window on every request and never persisted.
type Page[T any] struct {
	Items        []T
	CurrentPage  int
	PerPage      int
	Total        int
	TotalPages   int
	HasNext      bool
	HasPrevious  bool
	NextPage     *int
	PreviousPage *int
	From         int
	To           int
}

// Paginate slices items into the requested page. perPage is clamped to
// [1, MaxPerPage] and page to >= 1 before any offset math.
func Paginate[T any](items []T, pageNum, perPage int) Page[T] {
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if pageNum < 1 {
		pageNum = 1
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	offset := (pageNum - 1) * perPage

	var slice []T
	if offset < total {
		end := offset + perPage
		if end > total {
			end = total
		}
		slice = items[offset:end]
	} else {
		slice = []T{}
	}

	p := Page[T]{
		Items:       slice,
		CurrentPage: pageNum,
		PerPage:     perPage,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     pageNum < totalPages,
		HasPrevious: pageNum > 1,
		From:        offset + 1,
		To:          min(offset+perPage, total),
	}
	if p.HasNext {
		next := pageNum + 1
		p.NextPage = &next
	}
	if p.HasPrevious {
		prev := pageNum - 1
		p.PreviousPage = &prev
	}
	return p
}
