// Package jupyter defines the parts of the Jupyter messaging protocol the
// kernel produces and consumes: message headers, request and reply contents,
// and the publishing side of the iopub channel.
//
// The wire transport itself (ZeroMQ sockets, HMAC signing) is provided by the
// notebook bridge the kernel is connected to; see package server.
package jupyter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the version of the messaging protocol implemented.
const ProtocolVersion = "5.3"

// Header is the header of a Jupyter message.
type Header struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Identity identifies the Jupyter session the kernel serves. Evaluated code
// needs it to sign the display messages it produces.
type Identity struct {
	Session  string
	Key      string
	Username string
}

// NewIdentity returns an Identity with a fresh session id.
func NewIdentity(key, username string) Identity {
	return Identity{Session: uuid.NewString(), Key: key, Username: username}
}

// NewHeader builds the header of a new message of the given type.
func (id Identity) NewHeader(msgType string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		Session:  id.Session,
		Username: id.Username,
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:  msgType,
		Version:  ProtocolVersion,
	}
}

// Message is a complete Jupyter message. ParentHeader is kept raw, since the
// kernel only ever copies it from a request to the messages it causes.
type Message struct {
	Header       Header          `json:"header"`
	ParentHeader json.RawMessage `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      any             `json:"content"`
}

// Request is a message received on the shell channel. Its content is decoded
// according to Header.MsgType by the receiver.
type Request struct {
	Header       Header          `json:"header"`
	ParentHeader json.RawMessage `json:"parent_header,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Content      json.RawMessage `json:"content"`
}

// RawHeader returns the request header serialized as JSON, suitable for use
// as the parent header of the messages it causes.
func (r *Request) RawHeader() json.RawMessage {
	b, err := json.Marshal(r.Header)
	if err != nil {
		// A Header consists of strings only.
		panic(err)
	}
	return b
}
