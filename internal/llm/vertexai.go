package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/fmuoria/CV-Analyzer/internal/logging"
)

const (
	defaultLocation = "us-central1"
	defaultModel    = "gemini-2.5-flash"

	maxAttempts = 3
)

// Options configures the Vertex AI client
type Options struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
}

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	projectID string
	location  string
	backoff   time.Duration
}

// NewVertexAIClient creates a new Vertex AI client
func NewVertexAIClient(ctx context.Context, opts Options) (*VertexAIClient, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("google cloud project not set")
	}
	if opts.Location == "" {
		opts.Location = defaultLocation
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, opts.ProjectID, opts.Location, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)

	// low temperature keeps scores stable between runs
	model.SetTemperature(0.2)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(2048)

	return &VertexAIClient{
		client:    client,
		model:     model,
		projectID: opts.ProjectID,
		location:  opts.Location,
		backoff:   2 * time.Second,
	}, nil
}

// GenerateContent sends a prompt to the model and returns the response.
// Rate limited calls are retried with exponential backoff.
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	wait := v.backoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := v.generateOnce(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRateLimitError(err) || attempt == maxAttempts {
			break
		}

		logging.Warnf("Gemini rate limited (attempt %d/%d), retrying in %s", attempt, maxAttempts, wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return "", lastErr
}

func (v *VertexAIClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

// isRateLimitError reports quota and throttling failures
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "resource exhausted", "resourceexhausted", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}
