package kernel

import (
	"strings"
	"time"
	"unicode/utf8"

	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/jupyter"
)

// Control sequence that clears the whole display.
const clearSequence = "\033[2J"

// Maximum number of bytes taken from the evaluator per poll.
const pollChunk = 1000

// Forwards the output of the evaluator while a cell runs.
type pump struct {
	ev       evaluator.Evaluator
	pub      jupyter.Publisher
	interval time.Duration

	stopCh chan struct{}
	// Receives whether any output was seen, once the pump has finished.
	done chan bool
	// Output held back because it may continue in the next chunk.
	pending []byte
}

func startPump(ev evaluator.Evaluator, pub jupyter.Publisher, interval time.Duration) *pump {
	p := &pump{ev: ev, pub: pub, interval: interval,
		stopCh: make(chan struct{}), done: make(chan bool, 1)}
	go p.run()
	return p
}

// stop tells the pump to forward any remaining output and waits for it to
// finish. It returns whether any output was seen.
func (p *pump) stop() bool {
	close(p.stopCh)
	return <-p.done
}

func (p *pump) run() {
	hadOutput := false
	defer func() {
		if r := recover(); r != nil {
			logger.Println("output pump failed:", r)
		}
		p.done <- hadOutput
	}()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			if p.poll() {
				hadOutput = true
			}
			if err := p.forward(true); err != nil {
				logger.Println("output pump failed:", err)
			}
			return
		case <-ticker.C:
			if p.poll() {
				hadOutput = true
			}
			if err := p.forward(false); err != nil {
				logger.Println("output pump failed:", err)
				return
			}
		}
	}
}

// Takes all available output from the evaluator.
func (p *pump) poll() bool {
	got := false
	for {
		chunk := p.ev.PollOutput(pollChunk)
		if len(chunk) == 0 {
			return got
		}
		got = true
		p.pending = append(p.pending, chunk...)
	}
}

// Publishes the pending output. Unless final, a trailing incomplete UTF-8
// sequence or prefix of the clear sequence is kept for the next call.
func (p *pump) forward(final bool) error {
	text := p.pending
	p.pending = nil
	if !final {
		var tail []byte
		text, tail = splitIncomplete(text)
		p.pending = append(p.pending, tail...)
	}
	for _, seg := range splitClear(string(text)) {
		var err error
		if seg.clear {
			err = p.pub.Publish(jupyter.MsgClearOutput, jupyter.ClearOutput{Wait: false})
		} else {
			err = p.pub.Publish(jupyter.MsgStream, jupyter.Stdout(seg.text))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Splits off a suffix of b that may be completed by later output.
func splitIncomplete(b []byte) (complete, tail []byte) {
	// A partial clear sequence.
	for n := len(clearSequence) - 1; n > 0; n-- {
		if len(b) >= n && string(b[len(b)-n:]) == clearSequence[:n] {
			return b[:len(b)-n], b[len(b)-n:]
		}
	}
	// A partial UTF-8 encoding.
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return b, nil
			}
			return b[:i], b[i:]
		}
	}
	return b, nil
}

type segment struct {
	text  string
	clear bool
}

// Splits text at every clear sequence. Empty text segments are dropped.
func splitClear(text string) []segment {
	var segs []segment
	for {
		i := strings.Index(text, clearSequence)
		if i < 0 {
			break
		}
		if i > 0 {
			segs = append(segs, segment{text: text[:i]})
		}
		segs = append(segs, segment{clear: true})
		text = text[i+len(clearSequence):]
	}
	if text != "" {
		segs = append(segs, segment{text: text})
	}
	return segs
}
