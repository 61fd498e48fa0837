package kernel

import (
	"context"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/jupyter"
)

// Support library that lets evaluated code talk to the kernel.
//
//go:embed support/KernelCommunicator.swift
var communicatorSource string

const communicatorFile = "KernelCommunicator.swift"

const sessionDeclaration = `enum JupyterKernel {
  static var communicator = KernelCommunicator(
    jupyterSession: KernelCommunicator.JupyterSession(
      id: %s, key: %s, username: %s))
}
`

// Loads the support library, declares the per-session communicator and
// learns the width of integers in the evaluator.
func (s *Session) initCommunicator(ctx context.Context) error {
	id := s.cfg.Identity
	steps := []struct {
		file, code string
	}{
		{communicatorFile, communicatorSource},
		{s.cellName(), fmt.Sprintf(sessionDeclaration,
			swiftQuote(id.Session), swiftQuote(id.Key), swiftQuote(id.Username))},
	}
	for _, step := range steps {
		outcome, err := s.submit(ctx, step.file, step.code)
		if err != nil {
			return err
		}
		if outcome.Kind == evaluator.Diagnostic {
			return fmt.Errorf("loading %s: %s", step.file, outcome.Message)
		}
	}

	outcome, err := s.submit(ctx, s.cellName(), "Int.bitWidth")
	if err != nil {
		return err
	}
	if outcome.Kind != evaluator.ValueProduced {
		return fmt.Errorf("querying Int.bitWidth: %s", outcome.Message)
	}
	width, err := strconv.Atoi(strings.TrimSpace(outcome.Value.Description))
	if err != nil {
		return fmt.Errorf("querying Int.bitWidth: %w", err)
	}
	if width != 32 && width != 64 {
		return fmt.Errorf("unsupported integer bitwidth %d", width)
	}
	s.intWidth = width
	return nil
}

// Tells evaluated code which request is being executed.
func (s *Session) setParentMessage(ctx context.Context, parent json.RawMessage) error {
	if len(parent) == 0 {
		parent = json.RawMessage("{}")
	}
	outcome, err := s.submit(ctx, s.cellName(), fmt.Sprintf(
		"JupyterKernel.communicator.updateParentMessage(\n"+
			"    to: KernelCommunicator.ParentMessage(json: %s))\n", swiftQuote(string(parent))))
	if err != nil {
		return err
	}
	if outcome.Kind == evaluator.Diagnostic {
		return fmt.Errorf("error setting parent message: %s", outcome.Message)
	}
	return nil
}

// Runs the handlers that evaluated code has registered for successful cells,
// and forwards the display messages they produce. Failures are logged, since
// the cell itself has already succeeded.
func (s *Session) afterSuccessfulExecution(ctx context.Context, pub jupyter.Publisher) {
	outcome, err := s.submit(ctx, s.cellName(),
		"JupyterKernel.communicator.triggerAfterSuccessfulExecution()")
	if err != nil {
		logger.Println("triggerAfterSuccessfulExecution:", err)
		return
	}
	if outcome.Kind != evaluator.ValueProduced {
		logger.Printf("expected value from triggerAfterSuccessfulExecution(), but got %v: %s",
			outcome.Kind, outcome.Message)
		return
	}
	messages, err := s.readDisplayMessages(ctx, outcome.Value)
	if err != nil {
		logger.Println("reading display messages:", err)
		return
	}
	for _, parts := range messages {
		if err := pub.PublishRaw(parts); err != nil {
			logger.Println("cannot publish display message:", err)
		}
	}
}

// A list of messages, each a list of byte references.
func (s *Session) readDisplayMessages(ctx context.Context, v *evaluator.Value) ([][][]byte, error) {
	messages := make([][][]byte, 0, len(v.Children))
	for i := range v.Children {
		msg := &v.Children[i]
		parts := make([][]byte, 0, len(msg.Children))
		for j := range msg.Children {
			part, err := s.readBytes(ctx, &msg.Children[j])
			if err != nil {
				return nil, fmt.Errorf("message %d part %d: %w", i, j, err)
			}
			parts = append(parts, part)
		}
		messages = append(messages, parts)
	}
	return messages, nil
}

func (s *Session) readBytes(ctx context.Context, ref *evaluator.Value) ([]byte, error) {
	position, ok := ref.Child("_position")
	if !ok {
		return nil, errors.New("no _position")
	}
	count, ok := ref.Child("count")
	if !ok {
		return nil, errors.New("no count")
	}
	addr, err := decodeInt(position.Data, s.intWidth)
	if err != nil {
		return nil, fmt.Errorf("getting position: %w", err)
	}
	n, err := decodeInt(count.Data, s.intWidth)
	if err != nil {
		return nil, fmt.Errorf("getting count: %w", err)
	}
	signed := int64(n)
	if s.intWidth == 32 {
		signed = int64(int32(n))
	}
	switch {
	case signed < 0:
		return nil, fmt.Errorf("negative count %d", signed)
	case signed == 0:
		// Reading zero bytes is not a valid request.
		return []byte{}, nil
	}
	data, err := s.ev.ReadMemory(ctx, addr, int(signed))
	if err != nil {
		return nil, fmt.Errorf("getting data: %w", err)
	}
	return data, nil
}

// Decodes a little-endian integer of the given width in bits.
func decodeInt(data []byte, width int) (uint64, error) {
	switch width {
	case 32:
		if len(data) < 4 {
			return 0, fmt.Errorf("need 4 bytes, got %d", len(data))
		}
		return uint64(binary.LittleEndian.Uint32(data)), nil
	case 64:
		if len(data) < 8 {
			return 0, fmt.Errorf("need 8 bytes, got %d", len(data))
		}
		return binary.LittleEndian.Uint64(data), nil
	}
	return 0, fmt.Errorf("unsupported integer bitwidth %d", width)
}

// swiftQuote returns s as a Swift string literal.
func swiftQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case 0:
			sb.WriteString(`\0`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, `\u{%x}`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
