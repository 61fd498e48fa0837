package jupyter

// Publisher sends unsolicited messages to the front-end on the iopub channel.
// The messages are attributed to the request being handled.
type Publisher interface {
	// Publish sends a message of the given type with the given content.
	Publish(msgType string, content any) error
	// PublishRaw sends a multi-part message verbatim. It is used for
	// messages that evaluated code has already serialized and signed.
	PublishRaw(parts [][]byte) error
}
