package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GeminiProvider calls the Gemini API with the PDF inlined in the request.
type GeminiProvider struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	maxBytes int64
	log      zerolog.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, modelName string, maxBytes int64, log zerolog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	return &GeminiProvider{client: client, model: model, maxBytes: maxBytes, log: log}, nil
}

func (p *GeminiProvider) Extract(ctx context.Context, document []byte, schema Schema) (json.RawMessage, error) {
	if err := checkSize(document, p.maxBytes); err != nil {
		return nil, err
	}

	p.log.Debug().Int("size", len(document)).Msg("Calling Gemini for PDF analysis")

	resp, err := p.model.GenerateContent(ctx,
		genai.Text(schema.Prompt()),
		genai.Blob{MIMEType: "application/pdf", Data: document},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	text := geminiText(resp)
	if text == "" {
		p.log.Warn().Msg("Gemini returned empty content")
	}
	return parseDocument(text)
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) string {
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
