package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of one tool execution.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(data any) Result { return Result{Success: true, Data: data} }

func Failure(msg string) Result { return Result{Success: false, Error: msg} }

// Content is the tool_result text relayed to the model: the JSON of the data
// on success, the error message on failure.
func (r Result) Content() string {
	if !r.Success {
		if r.Error == "" {
			return "Unknown error"
		}
		return r.Error
	}
	return mustJSON(r.Data)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"marshal result: %s"}`, err.Error())
	}
	return string(data)
}
