// Package http implements an HTTP-based transport layer for RPC communication.
//
// The client posts serialized messages to the /rpc route of its endpoints, chosen round
// robin, through a pooled http.Client limited like the socket transports. Any status other
// than 200 is a transport error.
//
// The server routes requests with chi:
//
//	POST /rpc      serialized request, serialized response
//	GET  /healthz  liveness
//	GET  /metrics  prometheus metrics of the process
//
// In debug mode every request is logged with its status and duration.
package http
