// Package anthropiclike adapts an Anthropic-shaped messages REST API to the
// gateway's synthesis provider contract. Anthropic's API does not expose a
// general embeddings endpoint, so this adapter implements synthesis only.
package anthropiclike

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/usorama/engg-context-gateway/ai"
)

// Provider calls an Anthropic-compatible messages API.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func New(name, apiKey, baseURL, model string) *Provider {
	return &Provider{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Name() string { return p.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Provider) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	req := messagesRequest{
		Model:       p.model,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: userPrompt}},
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
	}
	body, _ := json.Marshal(req)

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	class := ai.ClassifyHTTP(statusOf(resp), err)
	if err != nil {
		return "", ai.Wrap(p.Name(), class, err)
	}
	defer resp.Body.Close()

	if class != "" {
		data, _ := io.ReadAll(resp.Body)
		return "", ai.Wrap(p.Name(), class, fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	if len(out.Content) == 0 {
		return "", ai.Wrap(p.Name(), ai.ErrOther, fmt.Errorf("empty messages response"))
	}
	return out.Content[0].Text, nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
