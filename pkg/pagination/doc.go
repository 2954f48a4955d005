// Package pagination walks the travel-log API's multi-request listings.
//
// Two traversals are provided, both strictly sequential:
//
//   - Traverser follows a cursor-linked chain of pages ({data, links.next})
//     until the server stops reporting a next page, accumulating records in
//     page order.
//   - BatchFetcher splits an id sequence into fixed-size chunks (the server
//     accepts at most 50 ids per request) and issues one request per chunk,
//     returning one geometry payload per chunk in chunk order.
//
// Example usage:
//
//	statuses, err := pagination.NewTraverser[status.Status](apiClient, "statuses").
//		Traverse(ctx, "https://traewelling.de/api/v1/user/freya/statuses")
//
//	fetcher, err := pagination.NewBatchFetcher(apiClient,
//		"https://traewelling.de/api/v1/polyline/", pagination.DefaultConfig())
//	geometry, err := fetcher.FetchGeometry(ctx, ids)
//
// Both abort on the first failure: a page that cannot be decoded is returned
// as *DecodeError rather than skipped, since skipping would silently lose
// records.
package pagination
