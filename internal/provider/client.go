package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 2000
)

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []ToolSpec `json:"tools,omitempty"`
	ToolChoice  string     `json:"tool_choice,omitempty"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens"`
	Stream      bool       `json:"stream"`
}

type chatResponseBody struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Client sends chat completions to whichever provider a model reference
// names, using the registry for base URL, credentials and the enabled flag.
type Client struct {
	registry   *Registry
	httpClient *http.Client
}

func NewClient(registry *Registry, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{registry: registry, httpClient: httpClient}
}

func (c *Client) Send(ctx context.Context, modelRef string, messages []Message, tools []ToolSpec) (*ChatResponse, error) {
	if c == nil || c.registry == nil {
		return nil, fmt.Errorf("chat completion service unavailable")
	}
	if err := ValidateMessages(messages); err != nil {
		return nil, err
	}

	kind, modelID := ParseModelRef(modelRef)
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("model reference is required")
	}

	settings := c.registry.Get(kind)
	if !settings.Enabled {
		return nil, fmt.Errorf("provider %q is disabled in settings", kind)
	}

	req := chatRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	buf, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	endpoint := strings.TrimRight(settings.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", "team-"+uuid.NewString())
	if strings.TrimSpace(settings.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+settings.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("%s api status=%d body=%s", kind, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponseBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", kind, err)
	}
	if len(out.Choices) == 0 {
		return &ChatResponse{Message: Message{Role: RoleAssistant}}, nil
	}

	msg := out.Choices[0].Message
	msg.Role = RoleAssistant
	return &ChatResponse{
		OutputText: msg.Content,
		Message:    msg,
		Usage: Usage{
			Input:  out.Usage.PromptTokens,
			Output: out.Usage.CompletionTokens,
		},
	}, nil
}
