package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/normalizer"
)

const defaultCloudOCREndpoint = "https://vision.googleapis.com"

// maxResponseBytes bounds how much of a backend response is read
const maxResponseBytes = 8 << 20

// CloudOCRConfig configures the cloud OCR backend
type CloudOCRConfig struct {
	APIKey   string
	Endpoint string
}

// CloudOCRClassifier asks an image annotation API for text and object
// annotations and runs the text extractors over the detected text.
type CloudOCRClassifier struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewCloudOCRClassifier creates the OCR backend. The request deadline comes
// from the caller's context.
func NewCloudOCRClassifier(cfg CloudOCRConfig, httpClient *http.Client) *CloudOCRClassifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultCloudOCREndpoint
	}
	return &CloudOCRClassifier{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

func (c *CloudOCRClassifier) Name() string { return string(domain.ProviderCloudOCR) }

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []annotateImageResponse `json:"responses"`
}

type annotateImageResponse struct {
	TextAnnotations []struct {
		Description string `json:"description"`
	} `json:"textAnnotations"`
	LocalizedObjectAnnotations []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"localizedObjectAnnotations"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *CloudOCRClassifier) Classify(ctx context.Context, sub Submission) (*domain.ValidationResult, error) {
	if !strings.HasPrefix(sub.MediaType(), "image/") {
		return nil, fmt.Errorf("cloud ocr: %s: %w", sub.MediaType(), ErrUnsupportedMedia)
	}

	body, err := json.Marshal(annotateRequest{
		Requests: []annotateImageRequest{{
			Image: annotateImage{Content: base64.StdEncoding.EncodeToString(sub.Data)},
			Features: []annotateFeature{
				{Type: "TEXT_DETECTION"},
				{Type: "OBJECT_LOCALIZATION", MaxResults: 10},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("cloud ocr: marshal request: %w", err)
	}

	reqURL := c.endpoint + "/v1/images:annotate?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cloud ocr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud ocr: request failed: %w", redactKey(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("cloud ocr: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("cloud ocr: service returned %d", resp.StatusCode)
	}

	var parsed annotateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("cloud ocr: parse response: %w", err)
	}
	if len(parsed.Responses) == 0 {
		return nil, fmt.Errorf("cloud ocr: %w", ErrEmptyResponse)
	}

	annotation := parsed.Responses[0]
	if annotation.Error != nil {
		return nil, fmt.Errorf("cloud ocr: annotation error %d: %s", annotation.Error.Code, annotation.Error.Message)
	}

	// The first text annotation holds the full text, the rest are single words
	text := ""
	if len(annotation.TextAnnotations) > 0 {
		text = annotation.TextAnnotations[0].Description
	}

	result := normalizer.FromText(text, sub.Expected, sub.referenceTime())
	if strings.TrimSpace(text) == "" {
		normalizer.NoTextDetected(result, c.Name())
	}

	if len(annotation.LocalizedObjectAnnotations) > 0 {
		objects := make([]string, 0, len(annotation.LocalizedObjectAnnotations))
		for _, o := range annotation.LocalizedObjectAnnotations {
			objects = append(objects, o.Name)
		}
		result.ExtractedFields["detectedObjects"] = strings.Join(objects, ",")
	}

	return result, nil
}

// redactKey strips the query string from url errors so the API key is never logged
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
