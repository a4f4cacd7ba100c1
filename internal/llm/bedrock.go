package llm

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/lukaswerner/starmirror/internal/config"
)

// bedrockEmbedder adapts Amazon Titan text embeddings to the langchaingo
// embeddings.Embedder interface. Titan has no batch endpoint, so documents
// are embedded one call at a time.
type bedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
}

var _ embeddings.Embedder = (*bedrockEmbedder)(nil)

func newBedrockEmbedder(ctx context.Context, cfg config.Config) (*bedrockEmbedder, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &bedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.BedrockModel,
	}, nil
}

// titanEmbedRequest is the Titan text embedding invocation body.
type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (b *bedrockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := b.invoke(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (b *bedrockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.invoke(ctx, text)
}

func (b *bedrockEmbedder) invoke(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	contentType := "application/json"
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &b.modelID,
		ContentType: &contentType,
		Accept:      &contentType,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", b.modelID, err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", b.modelID)
	}
	return resp.Embedding, nil
}
