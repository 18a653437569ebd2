// Package openaicompat adapts any OpenAI-compatible REST API (OpenAI itself,
// or an OpenAI-shaped gateway such as DeepSeek/Groq/Together) to the
// gateway's embedding and synthesis provider contracts.
package openaicompat

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

// Provider calls an OpenAI-compatible chat/embeddings REST surface.
type Provider struct {
	name            string
	apiKey          string
	baseURL         string
	embeddingModel  string
	synthesisModel  string
	client          *http.Client
}

// New builds a Provider identified by name (for logging/metrics), targeting
// baseURL with apiKey.
func New(name, apiKey, baseURL, embeddingModel, synthesisModel string) *Provider {
	return &Provider{
		name:           name,
		apiKey:         apiKey,
		baseURL:        baseURL,
		embeddingModel: embeddingModel,
		synthesisModel: synthesisModel,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *Provider) Name() string { return p.name }

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *Provider) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	body, _ := json.Marshal(embeddingsRequest{Model: p.embeddingModel, Input: text})

	resp, err := p.do(ctx, opts.Deadline, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	if len(out.Data) == 0 {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, fmt.Errorf("empty embeddings response"))
	}
	return out.Data[0].Embedding, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Seed        int           `json:"seed,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	req := chatRequest{
		Model: p.synthesisModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Seed:        opts.Seed,
	}
	body, _ := json.Marshal(req)

	resp, err := p.do(ctx, opts.Deadline, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	if len(out.Choices) == 0 {
		return "", ai.Wrap(p.Name(), ai.ErrOther, fmt.Errorf("empty chat response"))
	}
	return out.Choices[0].Message.Content, nil
}

func (p *Provider) do(ctx context.Context, deadline time.Duration, path string, body []byte) (*http.Response, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	class := ai.ClassifyHTTP(statusOf(resp), err)
	if err != nil {
		return nil, ai.Wrap(p.Name(), class, err)
	}
	if class != "" {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, ai.Wrap(p.Name(), class, fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	return resp, nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
