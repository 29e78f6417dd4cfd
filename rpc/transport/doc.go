// Package transport defines the interfaces and abstractions for RPC communication
// between the audit client and the document store server. It provides a common contract
// that all transport implementations must fulfill, enabling protocol-agnostic communication.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending. A transport sends every request
//     exactly once, the retry policy lives in the request pipeline above it.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and hands them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
