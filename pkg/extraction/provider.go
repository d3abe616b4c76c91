// Package extraction turns raw PDF bytes into structured JSON using a
// generative model. The model output is best-effort: an empty or partially
// conforming document is a valid result, only transport and parse failures are errors.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport covers request failures: network, quota, server errors, timeouts.
	ErrTransport = errors.New("extraction transport failure")
	// ErrParse means the model answered with text that is not JSON.
	ErrParse = errors.New("extraction response is not valid JSON")
	// ErrDocumentTooLarge means the document exceeds the inline request limit.
	ErrDocumentTooLarge = errors.New("document exceeds extraction size limit")
)

// Provider extracts structured data from a document.
type Provider interface {
	Extract(ctx context.Context, document []byte, schema Schema) (json.RawMessage, error)
}

// Schema is the target shape the model is asked to produce.
type Schema struct {
	Instruction string
	JSONSchema  string
}

// AnnualReportSchema is the fixed schema used by the worker.
var AnnualReportSchema = Schema{
	Instruction: "Extract key information (specifically: title, auditor, summary, keywords, board_members, " +
		"financial_year, loans) from the following annual report PDF.",
	JSONSchema: `{
  "type": "object",
  "properties": {
    "title": { "type": "string" },
    "auditor": { "type": "string", "nullable": true },
    "summary": { "type": "string" },
    "keywords": { "type": "array", "items": { "type": "string" } },
    "board_members": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": { "type": "string" },
          "role": { "type": "string", "nullable": true }
        },
        "required": ["name"]
      }
    },
    "financial_year": { "type": "string", "example": "2021-2022" },
    "loans": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "debt": { "type": "string" },
          "interest_rate": { "type": "string", "nullable": true }
        },
        "required": ["debt"]
      }
    }
  },
  "required": ["title", "summary", "keywords", "board_members", "financial_year", "loans"]
}`,
}

// Prompt renders the text part sent alongside the document.
func (s Schema) Prompt() string {
	return s.Instruction + " Provide the output as a JSON object strictly adhering to this schema:\n\n" +
		"```json\n" + s.JSONSchema + "\n```\n\n" +
		"Here is the PDF content:"
}

// parseDocument normalizes model text into JSON. Empty output becomes {}.
func parseDocument(text string) (json.RawMessage, error) {
	content := strings.TrimSpace(text)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" || content == "null" {
		return json.RawMessage(`{}`), nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(content)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func checkSize(document []byte, maxBytes int64) error {
	if maxBytes > 0 && int64(len(document)) > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrDocumentTooLarge, len(document), maxBytes)
	}
	return nil
}
