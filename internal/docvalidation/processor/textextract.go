package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/normalizer"
)

const (
	defaultTextExtractionEndpoint = "https://api.mistral.ai/v1/ocr"
	defaultTextExtractionModel    = "mistral-ocr-latest"
)

// TextExtractionConfig configures the document text extraction backend
type TextExtractionConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// TextExtractionClassifier sends the document as a data URL to an OCR
// endpoint and runs the text extractors over the returned page markdown.
type TextExtractionClassifier struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewTextExtractionClassifier creates the text extraction backend
func NewTextExtractionClassifier(cfg TextExtractionConfig, httpClient *http.Client) *TextExtractionClassifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &TextExtractionClassifier{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		httpClient: httpClient,
	}
	if c.endpoint == "" {
		c.endpoint = defaultTextExtractionEndpoint
	}
	if c.model == "" {
		c.model = defaultTextExtractionModel
	}
	return c
}

func (c *TextExtractionClassifier) Name() string { return string(domain.ProviderCloudTextExtraction) }

type extractionRequest struct {
	Model    string             `json:"model"`
	Document extractionDocument `json:"document"`
}

type extractionDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type extractionResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

func (c *TextExtractionClassifier) Classify(ctx context.Context, sub Submission) (*domain.ValidationResult, error) {
	mediaType := sub.MediaType()
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(sub.Data)

	doc := extractionDocument{}
	switch {
	case mediaType == "application/pdf":
		doc.Type = "document_url"
		doc.DocumentURL = dataURL
	case strings.HasPrefix(mediaType, "image/"):
		doc.Type = "image_url"
		doc.ImageURL = dataURL
	default:
		return nil, fmt.Errorf("text extraction: %s: %w", mediaType, ErrUnsupportedMedia)
	}

	body, err := json.Marshal(extractionRequest{Model: c.model, Document: doc})
	if err != nil {
		return nil, fmt.Errorf("text extraction: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("text extraction: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text extraction: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("text extraction: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("text extraction: service returned %d", resp.StatusCode)
	}

	var parsed extractionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("text extraction: parse response: %w", err)
	}

	var text strings.Builder
	for i, page := range parsed.Pages {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Markdown)
	}

	result := normalizer.FromText(text.String(), sub.Expected, sub.referenceTime())
	if strings.TrimSpace(text.String()) == "" {
		normalizer.NoTextDetected(result, c.Name())
	}
	return result, nil
}
