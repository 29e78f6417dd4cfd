// Package docstore is the client side of a partitioned document store.
//
// Requests and responses are plain structs that travel through a chain of Handler values.
// Middlewares wrap the next handler (retries, response marking, metrics), the innermost
// handler talks to the backend (an in-process engine or an RPC transport).
//
// Key Components:
//
//   - Request / Response: one operation against one collection. Non-success status codes are
//     carried in the Response so outer handlers can react to them.
//
//   - Handler, HandlerFunc, Middleware, Chain: the pipeline. Chain(t, a, b) runs a, then b,
//     then t for every attempt.
//
//   - Client: typed create/upsert/replace/read/delete helpers and Query, which returns a
//     FeedIterator over continuation-token paged results.
//
//   - Query / Predicate: a conjunction of field conditions evaluated against decoded json
//     documents, ordered by one field.
//
//   - StatusError: the error for non-success responses, matchable with errors.Is against
//     ErrNotFound, ErrConflict, ErrPreconditionFailed, ErrConcurrencyConflict and ErrThrottled.
package docstore
