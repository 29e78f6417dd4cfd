package server

import (
	"context"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the handler executing the decoded request.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(ctx context.Context, req *common.Message, handler docstore.Handler) (resp *common.Message)
}
