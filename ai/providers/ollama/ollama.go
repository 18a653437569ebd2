// Package ollama adapts a local Ollama-shaped inference server to the
// gateway's embedding and synthesis provider contracts.
package ollama

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

// Provider calls a local Ollama-compatible HTTP runtime for both embedding
// and synthesis roles.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

// New builds a Provider targeting baseURL (e.g. http://localhost:11434) with
// the given model name.
func New(baseURL, model string) *Provider {
	return &Provider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Provider) Name() string { return "ollama" }

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *Provider) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: p.model, Input: text})

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	class := ai.ClassifyHTTP(statusOf(resp), err)
	if err != nil {
		return nil, ai.Wrap(p.Name(), class, err)
	}
	defer resp.Body.Close()

	if class != "" {
		return nil, ai.Wrap(p.Name(), class, fmt.Errorf("ollama embed returned status %d", resp.StatusCode))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	if len(out.Embeddings) == 0 {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, fmt.Errorf("ollama returned no embeddings"))
	}
	return out.Embeddings[0], nil
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (p *Provider) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	req := generateRequest{
		Model:  p.model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: options{
			Temperature: opts.Temperature,
			Seed:        opts.Seed,
			NumPredict:  opts.MaxTokens,
			TopK:        opts.TopK,
		},
	}
	body, _ := json.Marshal(req)

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	class := ai.ClassifyHTTP(statusOf(resp), err)
	if err != nil {
		return "", ai.Wrap(p.Name(), class, err)
	}
	defer resp.Body.Close()

	if class != "" {
		data, _ := io.ReadAll(resp.Body)
		return "", ai.Wrap(p.Name(), class, fmt.Errorf("ollama generate returned status %d: %s", resp.StatusCode, data))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	return out.Response, nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
