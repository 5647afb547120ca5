package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fairguard/backend/config"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultSystemInstruction is sent with every prompt unless the caller
// supplies its own
const DefaultSystemInstruction = "You are a fair community moderation judge. Reply only with the JSON object described in the prompt."

// Request is one classifier submission
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Provider submits a request to one language-model backend and returns the
// raw text of its answer
type Provider interface {
	Name() string
	Submit(ctx context.Context, req Request) (string, error)
}

// StatusError is a non-2xx answer from a provider
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// maxResponseBytes bounds how much of a provider answer is read
const maxResponseBytes = 1 << 20

// NewProvider builds the provider selected by name. A nil client gets a
// pooled cleanhttp client.
func NewProvider(name string, cfg config.ProviderConfig, client *http.Client) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is not configured", name)
	}
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	switch name {
	case config.ProviderGemini:
		return &Gemini{client: client, endpoint: endpoint, model: cfg.Model, apiKey: cfg.APIKey}, nil
	case config.ProviderOpenAI, config.ProviderCerebras:
		return &OpenAI{name: name, client: client, endpoint: endpoint, model: cfg.Model, apiKey: cfg.APIKey}, nil
	case config.ProviderAnthropic:
		return &Anthropic{client: client, endpoint: endpoint, model: cfg.Model, apiKey: cfg.APIKey}, nil
	}
	return nil, fmt.Errorf("unknown classifier provider %q", name)
}

// postJSON sends body to url and decodes a 2xx answer into out
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func systemOf(req Request) string {
	if req.System == "" {
		return DefaultSystemInstruction
	}
	return req.System
}

// Gemini calls the generateContent endpoint with JSON output mode
type Gemini struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
}

func (g *Gemini) Name() string { return config.ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction geminiContent   `json:"systemInstruction"`
	GenerationConfig  struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Submit(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: systemOf(req)}}},
	}
	body.GenerationConfig.ResponseMimeType = "application/json"
	body.GenerationConfig.Temperature = req.Temperature

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	var out geminiResponse
	if err := postJSON(ctx, g.client, g.Name(), url, map[string]string{"x-goog-api-key": g.apiKey}, body, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// OpenAI speaks the chat completions API. Cerebras serves the same API and
// shares this implementation under its own name.
type OpenAI struct {
	name     string
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
}

func (o *OpenAI) Name() string { return o.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Submit(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemOf(req)},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
	}
	body.ResponseFormat.Type = "json_object"

	var out chatResponse
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := postJSON(ctx, o.client, o.name, o.endpoint+"/chat/completions", headers, body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// Anthropic calls the messages API
type Anthropic struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
}

const anthropicVersion = "2023-06-01"

func (a *Anthropic) Name() string { return config.ProviderAnthropic }

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Submit(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   1024,
		System:      systemOf(req),
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var out anthropicResponse
	if err := postJSON(ctx, a.client, a.Name(), a.endpoint+"/messages", headers, body, &out); err != nil {
		return "", err
	}
	for _, c := range out.Content {
		if c.Type == "" || c.Type == "text" {
			return c.Text, nil
		}
	}
	return "", nil
}

// isStatus reports whether err is a StatusError with one of codes
func isStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.StatusCode == c {
			return true
		}
	}
	return false
}
