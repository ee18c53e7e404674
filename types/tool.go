package types

import (
	"encoding/json"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a tool invocation requested by the reasoning layer.
type ToolCall struct {
	Provider  string          `json:"provider"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
