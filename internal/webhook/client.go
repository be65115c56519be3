// Package webhook is the HTTP client for the external job description
// analysis and CV scoring service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/metrics"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

const (
	analyzePath = "/api/jd/analyze"
	scorePath   = "/api/cv/score"

	// error bodies are truncated to keep messages readable
	maxErrorBody = 2048
)

// Op names the failing call in a ServiceError
type Op string

const (
	OpAnalyze Op = "Analyze"
	OpScore   Op = "Scoring"
)

// ServiceError is returned when the service answers with a non-2xx status
type ServiceError struct {
	Op         Op
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client posts multipart requests to the analysis service
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Timeout:    timeout,
	}
}

// Name identifies the backend in logs and metrics
func (c *Client) Name() string {
	return "webhook"
}

// Analyze sends the job description text and documents for requirement
// extraction and returns the raw JSON response
func (c *Client) Analyze(ctx context.Context, rawText string, files []*models.FileRef) ([]byte, error) {
	fields := []field{
		{name: "mode", value: "analyze"},
		{name: "raw_text", value: rawText},
	}
	return c.post(ctx, OpAnalyze, analyzePath, fields, files)
}

// Score sends the requirements and CV documents for scoring and returns the
// raw JSON response
func (c *Client) Score(ctx context.Context, reqs []models.Requirement, files []*models.FileRef) ([]byte, error) {
	skills := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.Skill != "" {
			skills = append(skills, r.Skill)
		}
	}
	if reqs == nil {
		reqs = []models.Requirement{}
	}

	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal skills: %w", err)
	}
	reqsJSON, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requirements: %w", err)
	}

	fields := []field{
		{name: "mode", value: "score"},
		{name: "skills", value: string(skillsJSON)},
		{name: "requirements", value: string(reqsJSON)},
	}
	return c.post(ctx, OpScore, scorePath, fields, files)
}

type field struct {
	name  string
	value string
}

func (c *Client) post(ctx context.Context, op Op, path string, fields []field, files []*models.FileRef) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBackend(string(op), c.Name(), start, err) }()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	payload, contentType, err := encodeMultipart(fields, files)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	logging.Debugf("POST %s with %d file(s)", req.URL.Path, len(files))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", strings.ToLower(string(op)), err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s response is not valid JSON", strings.ToLower(string(op)))
	}

	return body, nil
}

func encodeMultipart(fields []field, files []*models.FileRef) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	for i, f := range files {
		if f == nil {
			return nil, "", fmt.Errorf("file %d is missing", i)
		}
		if err := writeFile(w, f); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(w *multipart.Writer, f *models.FileRef) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer src.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to copy %s: %w", f.Name, err)
	}
	return nil
}
