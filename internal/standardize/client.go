// Package standardize calls the external translation agent that turns raw
// invoice text into English plus structured data. The agent reply is
// schema-validated before it is trusted; an error field inside otherwise
// well-formed structured data is a logical failure and fails the document.
package standardize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// responseSchema validates the translation agent reply. The agent is an
// external service; a malformed reply must fail the document, not crash the
// validator downstream.
const responseSchema = `{
  "type": "object",
  "required": ["translated_text", "detected_language", "confidence_score", "structured_data"],
  "properties": {
    "translated_text": {"type": "string"},
    "detected_language": {"type": "string"},
    "confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
    "structured_data": {
      "type": "object",
      "properties": {
        "invoice_no": {"type": ["string", "null"]},
        "invoice_date": {"type": ["string", "null"]},
        "vendor_id": {"type": ["string", "null"]},
        "currency": {"type": ["string", "null"]},
        "total_amount": {"type": ["number", "null"]},
        "error": {"type": ["string", "null"]},
        "line_items": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "item_code": {"type": ["string", "null"]},
              "description": {"type": ["string", "null"]},
              "qty": {"type": ["number", "null"]},
              "unit_price": {"type": ["number", "null"]},
              "currency": {"type": ["string", "null"]},
              "total": {"type": ["number", "null"]}
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("standardize-response.json", responseSchema)

// Request is the payload sent to the translation agent.
type Request struct {
	RawText        string            `json:"raw_text"`
	Metadata       map[string]string `json:"metadata"`
	TargetLanguage string            `json:"target_language"`
}

// Response is the translation agent reply.
type Response struct {
	TranslatedText   string          `json:"translated_text"`
	DetectedLanguage string          `json:"detected_language"`
	ConfidenceScore  float64         `json:"confidence_score"`
	StructuredData   json.RawMessage `json:"structured_data"`
}

// Result is the parsed, validated outcome of standardization.
type Result struct {
	Invoice          *models.StructuredInvoice
	TranslatedText   string
	DetectedLanguage string
	Confidence       float64
}

// Client calls the translation agent over HTTP.
type Client struct {
	url    string
	client *http.Client
}

// NewClient returns a client for the agent at url.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Standardize sends raw text plus sidecar metadata to the agent and returns
// the structured invoice. Transport errors, non-200 replies, schema
// violations, and an error field in the structured data all return an error;
// the caller fails the document on any of them.
func (c *Client) Standardize(ctx context.Context, rawText string, metadata map[string]string) (*Result, error) {
	body, err := json.Marshal(Request{
		RawText:        rawText,
		Metadata:       metadata,
		TargetLanguage: "English",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translation agent request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("translation agent returned status %d: %s", resp.StatusCode, snippet)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translation agent response: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode translation agent response: %w", err)
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("translation agent response failed schema validation: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode translation agent response: %w", err)
	}

	// An error field inside structured data is the agent reporting a logical
	// failure in well-formed JSON.
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(out.StructuredData, &probe); err == nil && probe.Error != "" {
		return nil, fmt.Errorf("translation agent reported error: %s", probe.Error)
	}

	invoice := &models.StructuredInvoice{}
	if err := json.Unmarshal(out.StructuredData, invoice); err != nil {
		return nil, fmt.Errorf("decode structured data: %w", err)
	}
	invoice.OriginalLanguage = out.DetectedLanguage
	invoice.TranslationConfidence = out.ConfidenceScore

	return &Result{
		Invoice:          invoice,
		TranslatedText:   out.TranslatedText,
		DetectedLanguage: out.DetectedLanguage,
		Confidence:       out.ConfidenceScore,
	}, nil
}
