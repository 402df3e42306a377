// Package provider implements the chat-completion service the team
// orchestration core delegates model calls to. Every supported provider is
// normalized to one wire shape (an OpenAI-style chat completions endpoint)
// and one message model, validated once at this boundary.
package provider

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat turn. Role decides which fields are meaningful:
// system/user carry Content only; assistant may carry ToolCalls; tool
// carries the ToolCallID it answers plus the result in Content.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec is an OpenAI-style function tool definition.
type ToolSpec map[string]any

type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

type ChatResponse struct {
	OutputText string  `json:"output_text"`
	Message    Message `json:"message"`
	Usage      Usage   `json:"usage"`
}

// Service is the chat-completion port the orchestration core depends on.
// Implementations do not retry; errors carry the provider message verbatim.
type Service interface {
	Send(ctx context.Context, modelRef string, messages []Message, tools []ToolSpec) (*ChatResponse, error)
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

func ToolMessage(toolCallID string, name string, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return fmt.Errorf("%s message must not carry tool call fields", m.Role)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return fmt.Errorf("assistant message must not carry tool_call_id")
		}
		for _, call := range m.ToolCalls {
			if strings.TrimSpace(call.Function.Name) == "" {
				return fmt.Errorf("assistant tool call is missing function name")
			}
		}
	case RoleTool:
		if strings.TrimSpace(m.ToolCallID) == "" {
			return fmt.Errorf("tool message requires tool_call_id")
		}
	default:
		return fmt.Errorf("role must be one of: system, user, assistant, tool")
	}
	return nil
}

func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}
