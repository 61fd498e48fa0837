package kernel

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"src.swiftkernel.dev/pkg/evaluator"
	"src.swiftkernel.dev/pkg/evaluator/evaltest"
	"src.swiftkernel.dev/pkg/jupyter"
	"src.swiftkernel.dev/pkg/jupyter/jupytertest"
)

func le64(n uint64) []byte { return binary.LittleEndian.AppendUint64(nil, n) }

func bytesRef(addr, count uint64) evaluator.Value {
	return evaluator.Value{Children: []evaluator.Value{
		{Name: "_position", Data: le64(addr)},
		{Name: "count", Data: le64(count)},
	}}
}

func displayMessages(messages ...[]evaluator.Value) evaltest.Handler {
	v := &evaluator.Value{Description: "display messages"}
	for _, parts := range messages {
		v.Children = append(v.Children, evaluator.Value{Children: parts})
	}
	return evaltest.Answer(evaluator.Outcome{Kind: evaluator.ValueProduced, Value: v})
}

func TestExecute_DisplayMessages(t *testing.T) {
	f := setup(t)
	f.ev.SetMemory(0x1000, []byte("header"))
	f.ev.SetMemory(0x2000, []byte(`{"data": {}}`))
	f.ev.On("triggerAfterSuccessfulExecution()", displayMessages(
		[]evaluator.Value{bytesRef(0x1000, 6), bytesRef(0x2000, 12), bytesRef(0, 0)}))
	f.ev.On("42", evaltest.Answer(evaltest.Value("42")))

	reply := f.execute(t, "42")
	if reply.Status != jupyter.StatusOK {
		t.Errorf("got status %q", reply.Status)
	}
	want := []jupytertest.Message{
		{MsgType: "raw", Parts: [][]byte{[]byte("header"), []byte(`{"data": {}}`), {}}},
		{MsgType: jupyter.MsgExecuteResult, Content: jupyter.PlainResult(1, "42")},
	}
	if diff := cmp.Diff(want, f.published()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExecute_NoDisplayMessagesAfterError(t *testing.T) {
	f := setup(t)
	f.ev.On("broken", evaltest.Answer(evaltest.Diagnostic("error: broken")))
	f.execute(t, "broken")
	if got := f.ev.CellFragments("JupyterKernel.communicator.triggerAfterSuccessfulExecution()"); len(got) != 0 {
		t.Errorf("after-success handlers ran after an error")
	}
}

func TestExecute_UnreadableDisplayMessagesAreDropped(t *testing.T) {
	f := setup(t)
	f.ev.On("triggerAfterSuccessfulExecution()", displayMessages(
		[]evaluator.Value{bytesRef(0xdead, 4)}))
	reply := f.execute(t, "1")
	if reply.Status != jupyter.StatusOK {
		t.Errorf("got status %q", reply.Status)
	}
	if msgs := f.published(); len(msgs) != 0 {
		t.Errorf("got messages %v", f.rec.Types())
	}
}

func TestReadBytes(t *testing.T) {
	ev := evaltest.New()
	ev.SetMemory(0x10, []byte("abcd"))
	s := &Session{ev: ev, intWidth: 32}
	ref := &evaluator.Value{Children: []evaluator.Value{
		{Name: "_position", Data: binary.LittleEndian.AppendUint32(nil, 0x10)},
		{Name: "count", Data: binary.LittleEndian.AppendUint32(nil, 3)},
	}}
	got, err := s.readBytes(testContext, ref)
	if err != nil || string(got) != "abc" {
		t.Errorf("readBytes -> (%q, %v), want (\"abc\", nil)", got, err)
	}

	bad := []*evaluator.Value{
		{Children: []evaluator.Value{{Name: "count", Data: le64(1)}}},
		{Children: []evaluator.Value{{Name: "_position", Data: le64(0x10)}}},
		{Children: []evaluator.Value{
			{Name: "_position", Data: []byte{1}},
			{Name: "count", Data: le64(1)}}},
		{Children: []evaluator.Value{
			{Name: "_position", Data: le64(0x10)},
			{Name: "count", Data: binary.LittleEndian.AppendUint32(nil, 0xffffffff)}}},
	}
	for i, ref := range bad {
		if _, err := s.readBytes(testContext, ref); err == nil {
			t.Errorf("readBytes(bad[%d]) -> nil error", i)
		}
	}
}

func TestDecodeInt(t *testing.T) {
	if n, err := decodeInt(le64(1<<40), 64); err != nil || n != 1<<40 {
		t.Errorf("got (%d, %v)", n, err)
	}
	if _, err := decodeInt(le64(1), 16); err == nil {
		t.Errorf("want error for unsupported width")
	}
}

var swiftQuoteTests = []struct {
	in, want string
}{
	{"", `""`},
	{"abc", `"abc"`},
	{`say "hi"`, `"say \"hi\""`},
	{`a\b`, `"a\\b"`},
	{"a\nb\tc\r", `"a\nb\tc\r"`},
	{"nul\x00", `"nul\0"`},
	{"bell\x07", `"bell\u{7}"`},
	{"<Cell 1> é", `"<Cell 1> é"`},
}

func TestSwiftQuote(t *testing.T) {
	for _, test := range swiftQuoteTests {
		if got := swiftQuote(test.in); got != test.want {
			t.Errorf("swiftQuote(%q) -> %q, want %q", test.in, got, test.want)
		}
	}
}

func TestInitCommunicator_RejectsUnknownWidth(t *testing.T) {
	f := setup(t)
	f.ev.On("Int.bitWidth", evaltest.Answer(evaltest.Value("16")))
	_, err := f.executeRequest(jupyter.ExecuteRequest{Code: "1"})
	var fault *InternalFault
	if !errors.As(err, &fault) || fault.Step != "initCommunicator" {
		t.Errorf("got error %v, want fault in initCommunicator", err)
	}
}
