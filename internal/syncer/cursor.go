package syncer

import "sync"

// PaginationCursor tracks per-ticket history paging. Offset 0 is the
// live head page; increasing offsets walk backward in time. A reset
// bumps the generation so responses issued against the previous ticket
// or cursor are discarded at apply time.
type PaginationCursor struct {
	mu         sync.Mutex
	pageSize   int
	offset     int
	hasMore    bool
	loading    bool
	generation uint64
}

// NewCursor builds a cursor positioned at the head page.
func NewCursor(pageSize int) *PaginationCursor {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &PaginationCursor{pageSize: pageSize, hasMore: true}
}

// Reset returns the cursor to {offset: 0, has_more: true} and
// invalidates all in-flight loads. Must run synchronously with ticket
// switches, before any new fetch is scheduled.
func (c *PaginationCursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
	c.hasMore = true
	c.loading = false
	c.generation++
}

// Generation returns the token to capture alongside a fetch. Responses
// whose token no longer matches must be dropped, not merged.
func (c *PaginationCursor) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// LoadMore advances the cursor by one page and returns the offset to
// fetch. It is a no-op (ok=false) when there is nothing further or a
// load is already running.
func (c *PaginationCursor) LoadMore() (offset int, generation uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasMore || c.loading {
		return 0, 0, false
	}
	c.loading = true
	c.offset += c.pageSize
	return c.offset, c.generation, true
}

// FinishLoad records the server's has_more flag and releases the
// loading latch. Results from a stale generation are ignored.
func (c *PaginationCursor) FinishLoad(generation uint64, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.loading = false
	c.hasMore = hasMore
}

// UpdateHasMore records the latest server response's has_more flag for
// the current generation (head fetches report it too).
func (c *PaginationCursor) UpdateHasMore(generation uint64, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	c.hasMore = hasMore
}

// Offset reports the deepest offset fetched since the last reset.
func (c *PaginationCursor) Offset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// HasMore reports whether older pages remain.
func (c *PaginationCursor) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Loading reports whether a load-older fetch is in flight.
func (c *PaginationCursor) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// PageSize returns the configured page size.
func (c *PaginationCursor) PageSize() int {
	return c.pageSize
}
