// Package unix implements the Unix domain socket transport on top of the base package's
// connector interfaces, for a client and server running on the same machine.
//
// The server removes a stale socket file before listening. The default buffer size is 64 KB.
package unix
