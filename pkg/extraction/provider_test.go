package extraction

import (
	"encoding/json"
	"testing"

	gemini "github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_PlainJSON(t *testing.T) {
	doc, err := parseDocument(`{ "title": "X",  "keywords": ["a"] }`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"X","keywords":["a"]}`, string(doc))
}

func TestParseDocument_StripsCodeFences(t *testing.T) {
	doc, err := parseDocument("```json\n{\"title\":\"Annual report 2022\"}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Annual report 2022"}`, string(doc))
}

func TestParseDocument_EmptyIsEmptyObject(t *testing.T) {
	for _, in := range []string{"", "   ", "null", "```json\n```"} {
		doc, err := parseDocument(in)
		require.NoError(t, err, in)
		assert.Equal(t, `{}`, string(doc), in)
	}
}

func TestParseDocument_PartialDocumentIsNotAnError(t *testing.T) {
	doc, err := parseDocument(`{"title":"only a title"}`)
	require.NoError(t, err)
	assert.True(t, json.Valid(doc))
}

func TestParseDocument_MalformedIsParseError(t *testing.T) {
	_, err := parseDocument(`{"title": "unterminated`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, checkSize(make([]byte, 10), 10))
	assert.NoError(t, checkSize(make([]byte, 10), 0))
	assert.ErrorIs(t, checkSize(make([]byte, 11), 10), ErrDocumentTooLarge)
}

func TestAnnualReportSchema_IsValidJSON(t *testing.T) {
	assert.True(t, json.Valid([]byte(AnnualReportSchema.JSONSchema)))
	assert.Contains(t, AnnualReportSchema.Prompt(), "board_members")
}

func TestGeminiText_ConcatenatesTextParts(t *testing.T) {
	resp := &gemini.GenerateContentResponse{
		Candidates: []*gemini.Candidate{{
			Content: &gemini.Content{Parts: []gemini.Part{gemini.Text(`{"title":`), gemini.Text(`"X"}`)}},
		}},
	}
	assert.Equal(t, `{"title":"X"}`, geminiText(resp))
	assert.Equal(t, "", geminiText(nil))
	assert.Equal(t, "", geminiText(&gemini.GenerateContentResponse{}))
}
