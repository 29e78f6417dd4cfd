// Package query turns event search criteria into docstore queries and drains their results.
//
// Build applies every criterion through a conditional where (Builder.WhereIf), so an unset
// criterion leaves the query untouched. Drain consumes a FeedIterator page by page, logging
// the elapsed time and request charge of each page.
package query
