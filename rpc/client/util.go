package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/serializer"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// invokeRPCRequest is a helper function used by the RPC handler to send requests.
// It serializes the request, sends it once over the transport and deserializes the response.
// It also checks if the response is an error response and if the type of the response is the expected type.
func invokeRPCRequest(ctx context.Context, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(ctx, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc: failed to deserialize response: %w", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("rpc: server error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc: unexpected message type %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}
