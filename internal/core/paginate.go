package core

// DefaultPageSize is the number of expenses shown per page.
const DefaultPageSize = 10

// TotalPages returns ceil(total/size), never less than 1.
func TotalPages(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		return 1
	}
	return pages
}

// Page returns the 1-indexed page of data. A page past the end yields an
// empty, non-nil slice; the page number is not clamped.
func Page(data []Expense, page, size int) []Expense {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	// Compare page counts first; (page-1)*size overflows for large pages.
	pages := len(data) / size
	if len(data)%size != 0 {
		pages++
	}
	if page > pages {
		return []Expense{}
	}
	start := (page - 1) * size
	end := start + size
	if end > len(data) {
		end = len(data)
	}
	out := make([]Expense, end-start)
	copy(out, data[start:end])
	return out
}
