// Package cmd implements the command-line interface of dAudit. It provides a hierarchical
// command structure with operations for running the document store server and for saving and
// querying events as a client.
//
// The package is organized into several subpackages:
//
//   - events: Commands for saving events, the reports and a performance test
//   - serve: Commands for starting and configuring the dAudit server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See daudit -help for a list of all commands.
package cmd
