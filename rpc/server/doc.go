// Package server implements the RPC server of the document store. It hosts a single
// engine.Executor (in memory or backed by pebble) and exposes it over any transport.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters, with the
//     Handle method that processes an incoming message against a docstore.Handler.
//
//   - NewDocstoreServerAdapter: Factory function creating the adapter that decodes a
//     message into a docstore.Request, executes it and encodes the response.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Engine:              common.EnginePebble,
//	  DataDir:             "/var/lib/daudit",
//	  QuotaUnitsPerSecond: 400,
//	  QuotaBurst:          400,
//	  Endpoint:            "0.0.0.0:8080",
//	  TimeoutSecond:       5,
//	  LogLevel:            "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// With a quota configured the engine answers requests above the per partition budget with
// 429 and a retry-after hint, which is what the client pipeline backs off on.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections. Serve should be
//	called only once, Close may be called from any goroutine.
package server
