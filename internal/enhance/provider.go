package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"insight/internal/domain"
)

// Provider produces a narrative enhancement from facts.
type Provider interface {
	Name() string
	Enhance(ctx context.Context, facts Facts) (*domain.Enhancement, Meta, error)
}

// Meta identifies the answer for provenance.
type Meta struct {
	Model      string
	ResponseID string
}

// Mode selects how the structured answer is requested.
type Mode string

const (
	// ModeJSONObject asks for any JSON object; the shape is enforced by Decode.
	ModeJSONObject Mode = "json_object"
	// ModeJSONSchema asks the provider to enforce the schema itself.
	ModeJSONSchema Mode = "json_schema"
)

const systemPrompt = `You are an executive strategic analyst. Analyze the provided metrics and findings to identify:
1. Key signals (emerging patterns, shifts in activity)
2. Strategic drift (deviation from expected patterns)
3. Decision pressure points (where decisions are needed)
4. Recommended actions (specific, actionable steps)
5. Watchlist items (things to monitor)

Provide ONLY factual, evidence-backed insights. No speculation or assumptions.
Output must be valid JSON matching the required schema.`

const userPromptTemplate = `Analyze these weekly strategic metrics and provide insights:

%s

Return a JSON object with arrays for: signals, drift, decision_pressure, recommended_actions, and watchlist.`

func stringArray(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

var enhancementSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"signals":             stringArray("Key signals detected from the data"),
		"drift":               stringArray("Strategic drift indicators"),
		"decision_pressure":   stringArray("Decision pressure points identified"),
		"recommended_actions": stringArray("Recommended actions based on analysis"),
		"watchlist":           stringArray("Items to watch going forward"),
	},
	"required":             []string{"signals", "drift", "decision_pressure", "recommended_actions", "watchlist"},
	"additionalProperties": false,
}

// ChatConfig configures a ChatProvider.
type ChatConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Mode        Mode
	Temperature float64
}

// ChatProvider calls an OpenAI-compatible /chat/completions endpoint.
type ChatProvider struct {
	cfg    ChatConfig
	client *http.Client
}

// NewChatProvider builds a provider. The HTTP client carries no timeout;
// Chain bounds each call through the context.
func NewChatProvider(cfg ChatConfig, client *http.Client) (*ChatProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Name)
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%s: base URL and model are required", cfg.Name)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeJSONObject
	}
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChatProvider{cfg: cfg, client: client}, nil
}

// NewGrok is the primary provider: JSON-object mode, shape checked locally.
func NewGrok(baseURL, apiKey, model string, client *http.Client) (*ChatProvider, error) {
	return NewChatProvider(ChatConfig{
		Name: "grok", BaseURL: baseURL, APIKey: apiKey, Model: model,
		Mode: ModeJSONObject, Temperature: 0.3,
	}, client)
}

// NewOpenAI is the fallback provider: strict json_schema mode.
func NewOpenAI(baseURL, apiKey, model string, client *http.Client) (*ChatProvider, error) {
	return NewChatProvider(ChatConfig{
		Name: "openai", BaseURL: baseURL, APIKey: apiKey, Model: model,
		Mode: ModeJSONSchema, Temperature: 0.3,
	}, client)
}

func (p *ChatProvider) Name() string { return p.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Enhance sends the facts and decodes the answer strictly.
func (p *ChatProvider) Enhance(ctx context.Context, facts Facts) (*domain.Enhancement, Meta, error) {
	payload, err := facts.Payload()
	if err != nil {
		return nil, Meta{}, err
	}

	req := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, payload)},
		},
		ResponseFormat: responseFormat{Type: string(p.cfg.Mode)},
		Temperature:    p.cfg.Temperature,
	}
	if p.cfg.Mode == ModeJSONSchema {
		req.ResponseFormat.JSONSchema = &jsonSchemaFormat{
			Name:   "strategic_enhancement",
			Strict: true,
			Schema: enhancementSchema,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Meta{}, fmt.Errorf("%s API error (status %d): %s", p.cfg.Name, resp.StatusCode, truncate(string(raw), 512))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Meta{}, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, Meta{}, fmt.Errorf("%s API error: %s", p.cfg.Name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, Meta{}, errors.New("empty response")
	}

	enhancement, err := Decode([]byte(strings.TrimSpace(parsed.Choices[0].Message.Content)))
	if err != nil {
		return nil, Meta{}, err
	}
	return enhancement, Meta{Model: p.cfg.Model, ResponseID: parsed.ID}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
