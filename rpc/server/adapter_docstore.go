package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/rpc/common"
)

func NewDocstoreServerAdapter() IRPCServerAdapter {
	return &docstoreServerAdapterImpl{}
}

type docstoreServerAdapterImpl struct{}

func (adapter *docstoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, handler docstore.Handler) *common.Message {
	// Check for nil handler
	if handler == nil {
		return common.NewErrorResponse("handler: engine is nil")
	}

	if req.MsgType == common.MsgTUnknown || req.MsgType == common.MsgTError {
		return common.NewErrorResponse(
			fmt.Sprintf("RPC DocstoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}

	dreq, err := req.ToRequest()
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}

	resp, err := handler.Send(ctx, dreq)
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}
	return common.NewResponseMessage(req.MsgType, resp)
}
