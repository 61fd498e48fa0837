package server

import (
	"context"
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"

	"src.swiftkernel.dev/pkg/jupyter"
)

// Sends iopub messages caused by one request as notifications.
type publisher struct {
	ctx    context.Context
	conn   jsonrpc2.JSONRPC2
	id     jupyter.Identity
	parent json.RawMessage
}

var _ jupyter.Publisher = (*publisher)(nil)

// Params of an "iopub_raw" notification.
type rawMessage struct {
	Parts [][]byte `json:"parts"`
}

func (p *publisher) Publish(msgType string, content any) error {
	return p.conn.Notify(p.ctx, "iopub", jupyter.Message{
		Header:       p.id.NewHeader(msgType),
		ParentHeader: p.parent,
		Metadata:     map[string]any{},
		Content:      content,
	})
}

func (p *publisher) PublishRaw(parts [][]byte) error {
	return p.conn.Notify(p.ctx, "iopub_raw", rawMessage{parts})
}

func (p *publisher) status(state string) {
	if err := p.Publish(jupyter.MsgStatus, jupyter.Status{ExecutionState: state}); err != nil {
		logger.Println("cannot publish status:", err)
	}
}
