// Package paginate windows ordered result sets into fixed-size pages.
package paginate

// DefaultPageSize applies when the caller passes a page size <= 0.
const DefaultPageSize = 10

// Page returns the pageIndex-th window of items and the total page count.
// pageIndex is 1-based and values below 1 behave as 1. There is always at
// least one page, so an empty input yields an empty window and 1. A page past
// the end yields an empty window.
func Page[T any](items []T, pageIndex, pageSize int) ([]T, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageIndex = max(pageIndex, 1)
	total := max(1, (len(items)+pageSize-1)/pageSize)

	start := (pageIndex - 1) * pageSize
	if start >= len(items) {
		return []T{}, total
	}
	end := min(start+pageSize, len(items))
	return items[start:end:end], total
}

// Single is the show-one bypass: a window holding just item, or nothing when
// it was not found, on a single page.
func Single[T any](item T, found bool) ([]T, int) {
	if !found {
		return []T{}, 1
	}
	return []T{item}, 1
}
