package store

import (
	"sync"

	"gastos/internal/core"
)

// PaginatedResult is one page of the store's data. Loading and Error pass
// through from the store state.
type PaginatedResult struct {
	Loading    bool           `json:"loading"`
	Error      string         `json:"error,omitempty"`
	Data       []core.Expense `json:"paginatedData"`
	TotalPages int            `json:"totalPages"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalItems int            `json:"totalItems"`
}

// Paginate slices page of st. The page is not clamped: past the last page
// Data is empty.
func Paginate(st State, page, size int) PaginatedResult {
	if size <= 0 {
		size = core.DefaultPageSize
	}
	return PaginatedResult{
		Loading:    st.Loading,
		Error:      st.Error,
		Data:       core.Page(st.Data, page, size),
		TotalPages: core.TotalPages(len(st.Data), size),
		Page:       page,
		PageSize:   size,
		TotalItems: len(st.Data),
	}
}

// Pagination keeps a page of the store's data together with the current
// page cell, starting at page 1.
type Pagination struct {
	store *Store
	size  int

	mu     sync.Mutex
	page   int
	last   State
	result *observable[PaginatedResult]
	unsub  func()
}

// NewPagination follows s with pages of size items; size <= 0 means the
// default of 10.
func NewPagination(s *Store, size int) *Pagination {
	if size <= 0 {
		size = core.DefaultPageSize
	}
	p := &Pagination{store: s, size: size, page: 1, last: s.Current()}
	p.result = newObservable(Paginate(p.last, p.page, size))
	p.unsub = s.Subscribe(func(st State) {
		p.mu.Lock()
		p.last = st
		r := Paginate(st, p.page, p.size)
		p.result.publish(r)
		p.mu.Unlock()
		p.result.drain()
	})
	return p
}

// NextPage advances one page unless already at totalPages.
func (p *Pagination) NextPage(totalPages int) {
	p.move(func(page int) int {
		if page < totalPages {
			return page + 1
		}
		return page
	})
}

// PrevPage goes back one page unless already at the first.
func (p *Pagination) PrevPage() {
	p.move(func(page int) int {
		if page > 1 {
			return page - 1
		}
		return page
	})
}

// SetPage jumps to n. Values below 1 select the first page.
func (p *Pagination) SetPage(n int) {
	p.move(func(int) int {
		if n < 1 {
			return 1
		}
		return n
	})
}

func (p *Pagination) move(next func(int) int) {
	p.mu.Lock()
	page := next(p.page)
	if page == p.page {
		p.mu.Unlock()
		return
	}
	p.page = page
	p.result.publish(Paginate(p.last, page, p.size))
	p.mu.Unlock()
	p.result.drain()
}

// Page returns the current page number.
func (p *Pagination) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// PageSize returns the number of items per page.
func (p *Pagination) PageSize() int {
	return p.size
}

// Current returns the latest result.
func (p *Pagination) Current() PaginatedResult {
	return p.result.get()
}

// Subscribe calls fn with the current result and on every change of the
// data or the page.
func (p *Pagination) Subscribe(fn func(PaginatedResult)) func() {
	return p.result.subscribe(fn)
}

// Close stops following the store.
func (p *Pagination) Close() {
	p.unsub()
}
