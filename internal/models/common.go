package models

// Pagination describes list metadata returned alongside collections.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes page counts for a total.
func NewPagination(page, pageSize, total int) *Pagination {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return &Pagination{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: pages}
}
