// Package base provides the foundation for the socket transports (TCP, Unix sockets),
// implementing the RPC framing independent of the specific network protocol. It is
// extended with protocol-specific connectors.
//
// Frames carry a requestID and the payload length, so a single connection multiplexes many
// concurrent requests and responses may arrive out of order.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     (dialing, listening and socket options).
//
//   - clientTransport: Manages a fixed number of connections per endpoint with round-robin
//     selection. Every connection bounds the requests in flight, re-dials after it breaks
//     and is replaced before use once it was idle longer than the idle timeout.
//
//   - serverTransport: Accepts connections and runs a bounded worker pool per connection.
//     Close stops the listener and all open connections.
//
//   - DialControl/ListenControl: socket options for the port reuse mode of the client
//     and the SO_REUSEADDR option of the server.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server uses a sync.Pool for read buffers and
//	a dedicated goroutine for each connection.
package base
