package client

import (
	"context"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/serializer"
	"github.com/ValentinKolb/dAudit/rpc/transport"
)

// NewRPCHandler connects the transport and returns a docstore.Handler that forwards every
// request to a remote document store server.
//
// Usage:
//
//	h, err := client.NewRPCHandler(
//		common.NewClientConfig([]string{"localhost:8080"}, 1, settings.New()),
//		tcp.NewTCPClientTransport(),
//		serializer.NewBinarySerializer(),
//	)
func NewRPCHandler(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCHandler, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCHandler{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// RPCHandler is the terminal handler of a request pipeline talking to a remote server
type RPCHandler struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.Handler)
// --------------------------------------------------------------------------

func (h *RPCHandler) Send(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
	msg, err := common.NewRequestMessage(req)
	if err != nil {
		return nil, err
	}

	resp, err := invokeRPCRequest(ctx, msg, h.transport, h.serializer)
	if err != nil {
		Logger.Debugf("%s on %s/%s failed: %v", req.Op, req.Database, req.Collection, err)
		return nil, err
	}
	return resp.ToResponse(), nil
}

// Close closes the underlying transport
func (h *RPCHandler) Close() error {
	return h.transport.Close()
}
