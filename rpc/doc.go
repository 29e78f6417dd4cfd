// Package rpc connects event clients to a remote document store server.
//
// The package is organized into several subpackages:
//
//   - common: the Message envelope, client and server configuration, and logging.
//
//   - transport: network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB).
//
//   - client: a docstore.Handler that forwards requests over a transport. It is the
//     innermost handler of the event client's pipeline and never retries on its own.
//
//   - server: hosts a storage engine (memory or pebble) behind a server transport.
package rpc
