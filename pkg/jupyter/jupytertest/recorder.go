// Package jupytertest provides a Publisher that records messages for tests.
package jupytertest

import (
	"strings"
	"sync"

	"src.swiftkernel.dev/pkg/jupyter"
)

// Message is a recorded message. Raw messages have MsgType "raw" and their
// parts in Parts.
type Message struct {
	MsgType string
	Content any
	Parts   [][]byte
}

// Recorder is a jupyter.Publisher that keeps every message it is given, in
// order. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// If not nil, returned by Publish and PublishRaw instead of recording.
	Err error
}

var _ jupyter.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(msgType string, content any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{MsgType: msgType, Content: content})
	return nil
}

func (r *Recorder) PublishRaw(parts [][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{MsgType: "raw", Parts: parts})
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Reset discards all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// Stdout returns the concatenated text of all stdout stream messages.
func (r *Recorder) Stdout() string {
	var sb strings.Builder
	for _, m := range r.Messages() {
		if s, ok := m.Content.(jupyter.Stream); ok && s.Name == "stdout" {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// Types returns the types of the recorded messages.
func (r *Recorder) Types() []string {
	msgs := r.Messages()
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.MsgType
	}
	return types
}
