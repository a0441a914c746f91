package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/normalizer"
)

const (
	defaultVisionModel     = "claude-sonnet-4-5"
	defaultVisionMaxTokens = 1024
	defaultMaxPDFPages     = 10
)

// VisionConfig configures the vision LLM backend
type VisionConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	MaxPDFPages int
}

// VisionClassifier sends the document to a vision LLM together with a
// category prompt and parses the JSON object in its answer.
type VisionClassifier struct {
	client    sdk.Client
	model     string
	maxTokens int64
	maxPages  int
}

// NewVisionClassifier creates the vision backend. Retries are disabled:
// a failed call falls back instead of being repeated.
func NewVisionClassifier(cfg VisionConfig) *VisionClassifier {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &VisionClassifier{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		maxPages:  cfg.MaxPDFPages,
	}
	if c.model == "" {
		c.model = defaultVisionModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultVisionMaxTokens
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPDFPages
	}
	return c
}

func (c *VisionClassifier) Name() string { return string(domain.ProviderVisionLLM) }

func (c *VisionClassifier) Classify(ctx context.Context, sub Submission) (*domain.ValidationResult, error) {
	if len(sub.Data) == 0 {
		return nil, fmt.Errorf("vision: %w", ErrEmptyResponse)
	}

	encoded := base64.StdEncoding.EncodeToString(sub.Data)
	pages := 0

	var block sdk.ContentBlockParamUnion
	switch mediaType := sub.MediaType(); mediaType {
	case "application/pdf":
		count, err := api.PageCount(bytes.NewReader(sub.Data), nil)
		if err != nil {
			return nil, fmt.Errorf("vision: read pdf page count: %w", err)
		}
		if count > c.maxPages {
			return nil, fmt.Errorf("vision: pdf has %d pages, limit is %d: %w", count, c.maxPages, ErrUnsupportedMedia)
		}
		pages = count
		block = sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{Data: encoded})
	case "image/jpeg", "image/png", "image/webp":
		block = sdk.NewImageBlockBase64(mediaType, encoded)
	default:
		return nil, fmt.Errorf("vision: %s: %w", mediaType, ErrUnsupportedMedia)
	}

	prompt := BuildPrompt(sub.Expected, sub.Metadata, pages)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(block, sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create message: %w", err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("vision: %w", ErrEmptyResponse)
	}

	return normalizer.FromJSON(text.String(), sub.Expected), nil
}
