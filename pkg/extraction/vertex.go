package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rs/zerolog"
)

// VertexProvider runs the same extraction through Vertex AI with project credentials.
type VertexProvider struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	maxBytes int64
	log      zerolog.Logger
}

func NewVertexProvider(ctx context.Context, projectID, region, modelName string, maxBytes int64, log zerolog.Logger) (*VertexProvider, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexProvider: projectID and region cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexProvider{client: client, model: model, maxBytes: maxBytes, log: log}, nil
}

func (p *VertexProvider) Extract(ctx context.Context, document []byte, schema Schema) (json.RawMessage, error) {
	if err := checkSize(document, p.maxBytes); err != nil {
		return nil, err
	}

	resp, err := p.model.GenerateContent(ctx,
		genai.Text(schema.Prompt()),
		genai.Blob{MIMEType: "application/pdf", Data: document},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	text := vertexText(resp)
	if text == "" {
		p.log.Warn().Msg("Vertex AI returned empty content")
	}
	return parseDocument(text)
}

func (p *VertexProvider) Close() error {
	return p.client.Close()
}

func vertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
