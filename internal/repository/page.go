package repository

// PageRequest selects a zero-based page. Callers normalize it before it
// reaches a store; stores only require Number >= 0 and Size > 0.
type PageRequest struct {
	Number int
	Size   int
}

func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// Page is one page of results, newest first.
type Page[T any] struct {
	Content       []*T  `json:"content"`
	PageNumber    int   `json:"page_number"`
	PageSize      int   `json:"page_size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

// NewPage fills in the derived page metadata.
func NewPage[T any](content []*T, req PageRequest, total int64) *Page[T] {
	if content == nil {
		content = []*T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return &Page[T]{
		Content:       content,
		PageNumber:    req.Number,
		PageSize:      req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         req.Number == 0,
		Last:          req.Number >= totalPages-1,
	}
}
