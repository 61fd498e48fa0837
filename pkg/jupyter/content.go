package jupyter

// Message types published on iopub.
const (
	MsgStream        = "stream"
	MsgExecuteResult = "execute_result"
	MsgError         = "error"
	MsgClearOutput   = "clear_output"
	MsgStatus        = "status"
	MsgExecuteInput  = "execute_input"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Stream is the content of a "stream" message.
type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Stdout returns the content of a "stream" message on stdout.
func Stdout(text string) Stream { return Stream{Name: "stdout", Text: text} }

// ExecuteResult is the content of an "execute_result" message.
type ExecuteResult struct {
	ExecutionCount int               `json:"execution_count"`
	Data           map[string]string `json:"data"`
	Metadata       map[string]any    `json:"metadata"`
}

// PlainResult returns an ExecuteResult carrying only a text/plain value.
func PlainResult(count int, text string) ExecuteResult {
	return ExecuteResult{
		ExecutionCount: count,
		Data:           map[string]string{"text/plain": text},
		Metadata:       map[string]any{},
	}
}

// Error is the content of an "error" message. Kernels in this family leave
// EName and EValue empty and put everything in Traceback.
type Error struct {
	Status         string   `json:"status"`
	ExecutionCount int      `json:"execution_count"`
	EName          string   `json:"ename"`
	EValue         string   `json:"evalue"`
	Traceback      []string `json:"traceback"`
}

// NewError returns the content of an "error" message.
func NewError(count int, traceback ...string) Error {
	return Error{Status: StatusError, ExecutionCount: count, Traceback: traceback}
}

// ClearOutput is the content of a "clear_output" message.
type ClearOutput struct {
	Wait bool `json:"wait"`
}

// Status is the content of a "status" message.
type Status struct {
	ExecutionState string `json:"execution_state"`
}

// ExecuteInput is the content of an "execute_input" message.
type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// ExecuteRequest is the content of an "execute_request" message.
type ExecuteRequest struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    bool              `json:"store_history"`
	UserExpressions map[string]string `json:"user_expressions"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

// ExecuteReply is the content of an "execute_reply" message. The error fields
// are set only when Status is StatusError.
type ExecuteReply struct {
	Status          string         `json:"status"`
	ExecutionCount  int            `json:"execution_count"`
	Payload         []any          `json:"payload"`
	UserExpressions map[string]any `json:"user_expressions"`
	EName           string         `json:"ename,omitempty"`
	EValue          string         `json:"evalue,omitempty"`
	Traceback       []string       `json:"traceback,omitempty"`
}

// OKReply returns a successful ExecuteReply.
func OKReply(count int) *ExecuteReply {
	return &ExecuteReply{
		Status:          StatusOK,
		ExecutionCount:  count,
		Payload:         []any{},
		UserExpressions: map[string]any{},
	}
}

// ErrorReply returns an ExecuteReply mirroring an "error" message.
func ErrorReply(e Error) *ExecuteReply {
	return &ExecuteReply{
		Status:          StatusError,
		ExecutionCount:  e.ExecutionCount,
		Payload:         []any{},
		UserExpressions: map[string]any{},
		EName:           e.EName,
		EValue:          e.EValue,
		Traceback:       e.Traceback,
	}
}

// CompleteRequest is the content of a "complete_request" message. CursorPos
// counts Unicode code points.
type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

// CompleteReply is the content of a "complete_reply" message.
type CompleteReply struct {
	Status      string         `json:"status"`
	Matches     []string       `json:"matches"`
	CursorStart int            `json:"cursor_start"`
	CursorEnd   int            `json:"cursor_end"`
	Metadata    map[string]any `json:"metadata"`
}

// IsCompleteRequest is the content of an "is_complete_request" message.
type IsCompleteRequest struct {
	Code string `json:"code"`
}

// IsCompleteReply is the content of an "is_complete_reply" message.
type IsCompleteReply struct {
	Status string `json:"status"`
}

// HistoryRequest is the content of a "history_request" message. Only the
// "tail" and "range" access types are supported.
type HistoryRequest struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	Session        int    `json:"session"`
	Start          int    `json:"start"`
	Stop           int    `json:"stop"`
	N              int    `json:"n"`
}

// HistoryReply is the content of a "history_reply" message. Each entry is a
// (session, line number, input) triple.
type HistoryReply struct {
	Status  string  `json:"status"`
	History [][]any `json:"history"`
}

// ShutdownRequest is the content of a "shutdown_request" message.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// ShutdownReply is the content of a "shutdown_reply" message.
type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

// LanguageInfo describes the language of the kernel.
type LanguageInfo struct {
	Name          string `json:"name"`
	MIMEType      string `json:"mimetype"`
	FileExtension string `json:"file_extension"`
	Version       string `json:"version"`
}

// KernelInfoReply is the content of a "kernel_info_reply" message.
type KernelInfoReply struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
}

// SwiftLanguage is the language_info of this kernel.
var SwiftLanguage = LanguageInfo{
	Name:          "swift",
	MIMEType:      "text/x-swift",
	FileExtension: ".swift",
	Version:       "",
}
