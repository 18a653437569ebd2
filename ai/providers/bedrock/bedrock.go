// Package bedrock adapts AWS Bedrock Runtime's Converse and embedding APIs
// to the gateway's provider contracts.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/usorama/engg-context-gateway/ai"
)

// Provider calls AWS Bedrock for the synthesis role (Converse API) and the
// embedding role (InvokeModel against a Titan/Cohere-shaped embedding model).
type Provider struct {
	client         *bedrockruntime.Client
	synthesisModel string
	embedModel     string
}

// New builds a Provider from an already-resolved aws.Config.
func New(cfg aws.Config, synthesisModel, embedModel string) *Provider {
	return &Provider{
		client:         bedrockruntime.NewFromConfig(cfg),
		synthesisModel: synthesisModel,
		embedModel:     embedModel,
	}
}

func (p *Provider) Name() string { return "bedrock" }

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *Provider) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.embedModel),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, ai.Wrap(p.Name(), classifyAWSError(err), err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, ai.Wrap(p.Name(), ai.ErrOther, err)
	}
	return resp.Embedding, nil
}

func (p *Provider) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.synthesisModel),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt}},
			},
		},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}
	inferenceConfig := &types.InferenceConfiguration{
		Temperature: aws.Float32(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		inferenceConfig.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	input.InferenceConfig = inferenceConfig

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return "", ai.Wrap(p.Name(), classifyAWSError(err), err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", ai.Wrap(p.Name(), ai.ErrOther, fmt.Errorf("unexpected bedrock output type"))
	}
	var content string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			content += text.Value
		}
	}
	return content, nil
}

func classifyAWSError(err error) ai.ErrorClass {
	msg := err.Error()
	switch {
	case contains(msg, "ThrottlingException"), contains(msg, "TooManyRequestsException"):
		return ai.ErrRateLimited
	case contains(msg, "AccessDeniedException"), contains(msg, "UnrecognizedClientException"):
		return ai.ErrAuth
	case contains(msg, "ResourceNotFoundException"), contains(msg, "ValidationException"):
		return ai.ErrModelNotFound
	case contains(msg, "ServiceUnavailableException"), contains(msg, "ModelTimeoutException"):
		return ai.ErrUnavailable
	default:
		return ai.ErrOther
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
