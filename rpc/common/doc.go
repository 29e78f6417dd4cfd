// Package common provides the data structures shared by the RPC client, server, serializers
// and transports of dAudit.
//
// Key Components:
//
//   - Message: the wire envelope of every docstore request and response. Factory functions
//     convert between Message and docstore.Request / docstore.Response, a docstore.Query
//     travels json encoded so all serializers carry it unchanged.
//
//   - MessageType: one type per docstore operation plus MsgTError for requests the server
//     could not handle at all.
//
//   - ServerConfig: engine, quota and transport parameters of a server.
//
//   - ClientConfig: connection limits and timeouts of a client transport, derived from the
//     throttle settings of the event client (NewClientConfig).
//
//   - Logger: custom dragonboat logger factory with a consistent format, see InitLoggers.
package common
