// Package client implements the RPC client of the document store. NewRPCHandler returns a
// docstore.Handler that forwards every request to a remote server via the configured
// transport and serializer, so it can terminate a request pipeline in place of a local engine.
//
// Usage Example:
//
//	config := common.NewClientConfig([]string{"localhost:8080"}, 2, settings.New())
//
//	h, _ := client.NewRPCHandler(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer h.Close()
//
//	events := docstore.NewClient(
//		docstore.Chain(h, pipeline.Throttling(s), pipeline.Concurrency()),
//		"Annotations", "EventsData",
//	)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The handler is thread-safe and can be used concurrently from multiple goroutines.
//	Every request is sent exactly once, retrying is left to the pipeline.
package client
