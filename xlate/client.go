package xlate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API wire formats supported by the HTTP client.
const (
	FormatOpenAIChat   = "openai-chat"
	FormatGeminiNative = "gemini"
)

// blockedFinishReasons are Gemini finish/block codes that mean the provider
// declined the content outright rather than failing to produce it.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

// Client is an HTTP translation provider speaking either the OpenAI chat or
// the native Gemini generateContent wire format. One call per Translate; the
// dispatcher owns all retry and pacing policy.
type Client struct {
	BaseURL      string
	Model        string
	APIKey       string
	Format       string
	SystemPrompt string

	http *http.Client
}

// NewClient builds a provider client. proxyURL may be empty, in which case
// the standard HTTP_PROXY/HTTPS_PROXY environment variables apply.
func NewClient(baseURL, model, apiKey, format, systemPrompt, proxyURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Model:        model,
		APIKey:       apiKey,
		Format:       format,
		SystemPrompt: systemPrompt,
		http:         makeHTTPClient(proxyURL, timeout),
	}
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Translate sends one string to the provider and returns the translation.
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	endpoint, headers, body, err := c.buildRequest(req)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("API returned status 429 (rate limit): %s", Truncate(string(respBody), 200))
	}
	if resp.StatusCode != http.StatusOK {
		if refusal := refusalFromBody(respBody, req.Text); refusal != nil {
			return "", refusal
		}
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, Truncate(string(respBody), 500))
	}

	return c.extractText(respBody, req.Text)
}

func (c *Client) buildRequest(req Request) (string, map[string]string, []byte, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	userPrompt := req.Text

	switch c.Format {
	case FormatGeminiNative:
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.BaseURL, c.Model)
		if c.APIKey != "" {
			headers["x-goog-api-key"] = c.APIKey
		}
		body, err := buildGeminiRequest(c.SystemPrompt, userPrompt)
		return endpoint, headers, body, err

	case FormatOpenAIChat, "":
		endpoint := c.BaseURL + "/chat/completions"
		if c.APIKey != "" {
			headers["Authorization"] = "Bearer " + c.APIKey
		}
		body, err := buildOpenAIChatRequest(c.Model, c.SystemPrompt, userPrompt)
		return endpoint, headers, body, err

	default:
		return "", nil, nil, fmt.Errorf("unknown API format %q", c.Format)
	}
}

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// extractText pulls the translated text out of a 200 response, in either
// wire format, converting an in-band refusal into a *RefusalError.
func (c *Client) extractText(body []byte, sourceText string) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// Gemini: a prompt-level block carries no candidates at all.
	if feedback, ok := raw["promptFeedback"].(map[string]any); ok {
		if reason, ok := feedback["blockReason"].(string); ok && reason != "" {
			return "", &RefusalError{Reason: reason, Text: sourceText}
		}
	}

	// OpenAI chat: choices[0].message.content, finish_reason content_filter.
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if choice["finish_reason"] == "content_filter" {
				return "", &RefusalError{Reason: "content_filter", Text: sourceText}
			}
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// Gemini: candidates[0].content.parts[0].text, finishReason SAFETY etc.
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if reason, ok := candidate["finishReason"].(string); ok && blockedFinishReasons[reason] {
				return "", &RefusalError{Reason: reason, Text: sourceText}
			}
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", Truncate(string(body), 500))
}

// refusalFromBody inspects a non-200 error body for an explicit content
// block. Gemini reports prompt blocks as 400s with a blockReason detail.
func refusalFromBody(body []byte, sourceText string) *RefusalError {
	var raw struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	message := strings.ToLower(raw.Error.Message)
	if strings.Contains(message, "blocked") || strings.Contains(message, "content policy") {
		reason := raw.Error.Status
		if reason == "" {
			reason = "BLOCKED"
		}
		return &RefusalError{Reason: reason, Text: sourceText}
	}
	return nil
}
