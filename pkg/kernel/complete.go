package kernel

import (
	"context"
	"strings"
	"unicode/utf8"

	"src.swiftkernel.dev/pkg/jupyter"
)

// Complete handles a complete request. It returns no matches if completion is
// disabled or not supported, or if the evaluator has not been started yet.
func (s *Session) Complete(ctx context.Context, req jupyter.CompleteRequest) *jupyter.CompleteReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	runes := []rune(req.Code)
	cursor := min(max(req.CursorPos, 0), len(runes))
	reply := &jupyter.CompleteReply{
		Status:      jupyter.StatusOK,
		Matches:     []string{},
		CursorStart: req.CursorPos,
		CursorEnd:   req.CursorPos,
		Metadata:    map[string]any{},
	}
	if !s.completion || !s.booted() || !s.caps.Completion || !s.ev.Alive() {
		return reply
	}
	c, err := s.ev.Complete(ctx, string(runes[:cursor]))
	if err != nil {
		logger.Println("completion failed:", err)
		return reply
	}
	for _, m := range c.Matches {
		match := c.Prefix + m
		// Names starting with an underscore are private by convention.
		if strings.HasPrefix(match, "_") {
			continue
		}
		reply.Matches = append(reply.Matches, match)
	}
	reply.CursorStart = cursor - utf8.RuneCountInString(c.Prefix)
	reply.CursorEnd = cursor
	return reply
}
