package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// envelope is the uniform tool response shape: success flag, human-readable
// message, optional structured data.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ok renders a successful tool result.
func ok(message string, data any) *mcp.CallToolResult {
	body, err := json.Marshal(envelope{Success: true, Message: message, Data: data})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(body))
}

// fail renders a failed tool result. Failures are ordinary text results so
// MCP clients surface the message to the model instead of aborting.
func fail(message string, err error) *mcp.CallToolResult {
	if err != nil {
		message = fmt.Sprintf("%s. %v", message, err)
	}
	body, merr := json.Marshal(envelope{Success: false, Message: message})
	if merr != nil {
		return mcp.NewToolResultError(message)
	}
	return mcp.NewToolResultText(string(body))
}
