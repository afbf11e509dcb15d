// Package tools implements the assistant's tool surface: message
// analysis, status digests, search, thread fetches, and the
// preference and session management actions. Tools execute against
// the store, the Slack API client, and the file-backed preference and
// session stores, and return JSON payloads for the model.
package tools

import "encoding/json"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`  // content sent to the LLM
	IsError bool   `json:"is_error"` // marks error
	Err     error  `json:"-"`        // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// JSONResult marshals a payload for the LLM. Marshal failures become
// error results so the loop never sees a malformed tool response.
func JSONResult(payload any) *Result {
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult("failed to encode tool result: " + err.Error()).WithError(err)
	}
	return NewResult(string(data))
}
