package model

import "encoding/json"

// TraceAction is the call half of a trace frame.
type TraceAction struct {
	CallType string `json:"callType,omitempty"`
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Gas      string `json:"gas,omitempty"`
	Input    string `json:"input,omitempty"`
}

// TraceResult is the outcome half of a trace frame.
type TraceResult struct {
	GasUsed string `json:"gasUsed,omitempty"`
	Output  string `json:"output,omitempty"`
}

// TraceFrame is one internal operation, in the trace_transaction layout.
type TraceFrame struct {
	Type         string       `json:"type"`
	Action       TraceAction  `json:"action"`
	Result       *TraceResult `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
	Subtraces    int          `json:"subtraces"`
	TraceAddress []int        `json:"traceAddress"`
}

// Trace is the structured execution record of one transaction.
type Trace struct {
	TxHash string          `json:"tx_hash"`
	Method string          `json:"method"`
	Frames []TraceFrame    `json:"frames"`
	Raw    json.RawMessage `json:"raw"`
}
