// Package tcp implements the TCP socket transport on top of the base package's
// connector interfaces.
//
// The client dials with the configured dial timeout and port reuse mode and disables
// Nagle's algorithm. The server applies the TCP options of the server configuration
// (TCPNoDelay, keep-alive) to each accepted connection.
//
// The default server buffer size is set to 512 KB.
package tcp
