// Package pagination drives page and cursor navigation over a paged fetch.
package pagination

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
)

// MaxPage bounds requested page numbers.
const MaxPage = 1_000_000

// Params is the request for one page.
type Params struct {
	Page     int    `json:"page" validate:"min=1,max=1000000"`
	PageSize int    `json:"page_size" validate:"min=1,max=100"`
	Cursor   string `json:"cursor,omitempty"`
	// Filters narrow the view. Keys are canonical field names.
	Filters map[string]string `json:"filters,omitempty"`
}

// Block is the pagination metadata returned with every page.
type Block struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Total      int    `json:"total"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// TotalPages returns ceil(Total/PageSize).
func (b Block) TotalPages() int {
	if b.PageSize <= 0 {
		return 1
	}
	return PageCount(b.Total, b.PageSize)
}

// PageCount returns ceil(total/pageSize) without overflowing.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	n := total / pageSize
	if total%pageSize != 0 {
		n++
	}
	return n
}

// HasMore reports whether rows follow page. It holds for any page number,
// including ones whose offset would overflow an int.
func HasMore(page, pageSize, total int) bool {
	return page >= 1 && page < PageCount(total, pageSize)
}

// Window returns the [start, end) slice bounds of page within total rows.
// A page past the end yields an empty window.
func Window(page, pageSize, total int) (start, end int) {
	if page < 1 || page > PageCount(total, pageSize) {
		return 0, 0
	}
	start = (page - 1) * pageSize
	return start, min(start+pageSize, total)
}

// Page is one page of results.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Pagination Block `json:"pagination"`
}

// FetchFunc loads one page.
type FetchFunc[T any] func(ctx context.Context, params Params) (Page[T], error)

// State is a snapshot of the controller.
type State[T any] struct {
	Data       []T    `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Cursor     string `json:"cursor,omitempty"`
	Total      int    `json:"total"`
	HasMore    bool   `json:"has_more"`
	TotalPages int    `json:"total_pages"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error,omitempty"`
}

// Controller tracks page, page size and cursor for one paged view.
// Every accepted navigation triggers a fetch; only the latest fetch may
// update the state.
type Controller[T any] struct {
	fetch  FetchFunc[T]
	logger *zap.Logger

	mu         sync.Mutex
	page       int
	pageSize   int
	cursor     string
	nextCursor string
	last       *Block
	data       []T
	loading    bool
	err        string
	gen        uint64
	cancel     context.CancelFunc
}

// NewController creates a controller positioned on page 1.
func NewController[T any](fetch FetchFunc[T], pageSize int, logger *zap.Logger) (*Controller[T], error) {
	if fetch == nil {
		return nil, fmt.Errorf("pagination: fetch function is required")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("pagination: page size must be positive, got %d", pageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller[T]{
		fetch:    fetch,
		logger:   logger,
		page:     1,
		pageSize: pageSize,
		data:     []T{},
	}, nil
}

// Load fetches the current page.
func (c *Controller[T]) Load(ctx context.Context) State[T] {
	return c.navigate(ctx, func() bool { return true })
}

// Refetch reissues the current page without changing any parameter.
func (c *Controller[T]) Refetch(ctx context.Context) State[T] {
	return c.Load(ctx)
}

// NextPage advances one page when the last response reported more data,
// continuing from its next cursor when one was given.
func (c *Controller[T]) NextPage(ctx context.Context) State[T] {
	return c.navigate(ctx, func() bool {
		if c.last == nil || !c.last.HasMore {
			return false
		}
		c.page++
		c.cursor = c.nextCursor
		return true
	})
}

// PrevPage moves back one page unless already on the first.
func (c *Controller[T]) PrevPage(ctx context.Context) State[T] {
	return c.navigate(ctx, func() bool {
		if c.page <= 1 {
			return false
		}
		c.page--
		c.cursor = ""
		return true
	})
}

// GoToPage jumps to page n. Pages outside 1..TotalPages are ignored.
func (c *Controller[T]) GoToPage(ctx context.Context, n int) State[T] {
	return c.navigate(ctx, func() bool {
		if n < 1 || n > c.totalPagesLocked() {
			return false
		}
		c.page = n
		c.cursor = ""
		return true
	})
}

// SetPageSize changes the page size and returns to page 1.
func (c *Controller[T]) SetPageSize(ctx context.Context, size int) State[T] {
	return c.navigate(ctx, func() bool {
		if size <= 0 {
			return false
		}
		c.pageSize = size
		c.page = 1
		c.cursor = ""
		return true
	})
}

// State returns a snapshot of the controller.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// TotalPages is derived from the latest response, or 1 before any response.
func (c *Controller[T]) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalPagesLocked()
}

// Close cancels an in-flight fetch.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// navigate applies move under the lock and, when it changed anything,
// fetches the resulting page.
func (c *Controller[T]) navigate(parent context.Context, move func() bool) State[T] {
	c.mu.Lock()
	if !move() {
		st := c.snapshotLocked()
		c.mu.Unlock()
		return st
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.loading = true
	c.err = ""
	params := Params{Page: c.page, PageSize: c.pageSize, Cursor: c.cursor}
	c.mu.Unlock()

	result, err := c.fetch(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return c.snapshotLocked()
	}
	cancel()
	c.cancel = nil
	c.loading = false

	switch {
	case err == nil:
		block := result.Pagination
		c.last = &block
		c.nextCursor = block.NextCursor
		c.data = result.Data
		if c.data == nil {
			c.data = []T{}
		}
	case services.IsCancelledError(err):
		c.logger.Debug("page fetch cancelled", zap.Int("page", params.Page))
	default:
		c.err = err.Error()
		c.logger.Warn("page fetch failed",
			zap.Int("page", params.Page),
			zap.Int("page_size", params.PageSize),
			zap.Error(err),
		)
	}
	return c.snapshotLocked()
}

func (c *Controller[T]) totalPagesLocked() int {
	if c.last == nil {
		return 1
	}
	return c.last.TotalPages()
}

func (c *Controller[T]) snapshotLocked() State[T] {
	st := State[T]{
		Data:       c.data,
		Page:       c.page,
		PageSize:   c.pageSize,
		Cursor:     c.cursor,
		TotalPages: c.totalPagesLocked(),
		Loading:    c.loading,
		Error:      c.err,
	}
	if c.last != nil {
		st.Total = c.last.Total
		st.HasMore = c.last.HasMore
	}
	return st
}
