/*
store.go - Cursor pagination shared by every repository

PURPOSE:
  The hosted platform returns collections one page at a time
  (first/after, hasNextPage/endCursor). Repositories expose a single
  page fetch; callers use Iterator or CollectAll to walk the collection.

CONTRACT:
  - A fetch with an empty cursor returns the first page.
  - HasNextPage=false ends the walk; EndCursor of the last page is ignored.
  - A page that claims more data but returns no cursor ends the walk, so a
    misbehaving server cannot loop forever.

SEE ALSO:
  - payroll/store.go: Repository interfaces built on Page
  - store/noloco: GraphQL implementation
  - store/memory: In-memory implementation
*/
package generic

import (
	"context"
	"strings"
)

// DefaultPageSize matches the platform's page cap.
const DefaultPageSize = 100

// PageInfo mirrors the Relay-style cursor block.
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// Page is one slice of a collection.
type Page[T any] struct {
	Items    []T
	PageInfo PageInfo
}

// Filter narrows a list call. Zero value lists everything.
type Filter struct {
	First int
	After string

	// Optional equality filters; repositories that cannot push them down
	// must apply them client-side.
	EmployeePIN string
	ID          string
}

// PageSize returns First or the default.
func (f Filter) PageSize() int {
	if f.First <= 0 {
		return DefaultPageSize
	}
	return f.First
}

// PageFetcher loads the page after the cursor.
type PageFetcher[T any] func(ctx context.Context, filter Filter) (Page[T], error)

// =============================================================================
// ITERATOR
// =============================================================================

// Iterator walks a paginated collection one item at a time.
type Iterator[T any] struct {
	fetch  PageFetcher[T]
	filter Filter

	items []T
	pos   int
	cur   T
	done  bool
	err   error
	pages int
}

// NewIterator starts at the first page of filter.
func NewIterator[T any](fetch PageFetcher[T], filter Filter) *Iterator[T] {
	return &Iterator[T]{fetch: fetch, filter: filter}
}

// Next advances to the next item, fetching pages as needed.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	for it.pos >= len(it.items) {
		if it.done || it.err != nil {
			return false
		}
		page, err := it.fetch(ctx, it.filter)
		if err != nil {
			it.err = err
			return false
		}
		it.pages++
		it.items = page.Items
		it.pos = 0

		cursor := strings.TrimSpace(page.PageInfo.EndCursor)
		if !page.PageInfo.HasNextPage || cursor == "" || cursor == it.filter.After {
			it.done = true
		} else {
			it.filter.After = cursor
		}
	}
	it.cur = it.items[it.pos]
	it.pos++
	return true
}

// Item returns the current item.
func (it *Iterator[T]) Item() T { return it.cur }

// Err returns the fetch error that stopped the walk, if any.
func (it *Iterator[T]) Err() error { return it.err }

// Pages returns how many pages were fetched so far.
func (it *Iterator[T]) Pages() int { return it.pages }

// CollectAll drains the collection into a slice.
func CollectAll[T any](ctx context.Context, fetch PageFetcher[T], filter Filter) ([]T, error) {
	it := NewIterator(fetch, filter)
	var all []T
	for it.Next(ctx) {
		all = append(all, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return all, nil
}
