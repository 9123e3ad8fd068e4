package imagegen

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider renders through the OpenAI images API. Steps, guidance and
// seed are not exposed by that API and are ignored.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider wraps client. An empty model means dall-e-2, the only
// OpenAI model that accepts 512x512.
func NewOpenAIProvider(client *openai.Client, model string) *OpenAIProvider {
	if model == "" {
		model = openai.CreateImageModelDallE2
	}
	return &OpenAIProvider{client: client, model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate requests one base64 image and decodes it. Prompts over
// MaxOpenAIPromptLength are rejected without a request.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Prompt) > MaxOpenAIPromptLength {
		return nil, fmt.Errorf("%w: prompt length %d exceeds the %s limit of %d",
			ErrInvalidPrompt, len(req.Prompt), p.model, MaxOpenAIPromptLength)
	}
	imgReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          p.model,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	}
	if req.Width > 0 && req.Height > 0 {
		imgReq.Size = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	if p.model == openai.CreateImageModelDallE3 {
		imgReq.Style = openai.CreateImageStyleVivid
	}

	resp, err := p.client.CreateImage(ctx, imgReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImages
	}
	return decodeBase64Image(resp.Data[0].B64JSON)
}

var _ Provider = (*OpenAIProvider)(nil)
