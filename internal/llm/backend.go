package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/metrics"
	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/scoring"
)

const defaultConcurrency = 4

// Backend answers analysis and scoring requests with a Gemini model instead
// of the external service. Responses use the same JSON shapes the service
// returns.
type Backend struct {
	scorer      *scoring.Scorer
	extract     func(*models.FileRef) (string, error)
	concurrency int
}

// NewBackend creates a backend around a text generator
func NewBackend(gen scoring.Generator) *Backend {
	return &Backend{
		scorer:      scoring.NewScorer(gen),
		extract:     ingestion.ExtractText,
		concurrency: defaultConcurrency,
	}
}

// Name identifies the backend in logs and metrics
func (b *Backend) Name() string {
	return "gemini"
}

type analyzeResponse struct {
	RequirementsText string `json:"requirements_text"`
}

// scoreItem is one scoring response element. Position matches the upload.
type scoreItem struct {
	Name    string  `json:"name,omitempty"`
	Email   string  `json:"email,omitempty"`
	Overall float64 `json:"overall"`
	File    string  `json:"file,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Analyze extracts requirement text from the job description. Unreadable
// documents are skipped with a warning.
func (b *Backend) Analyze(ctx context.Context, rawText string, files []*models.FileRef) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBackend("Analyze", b.Name(), start, err) }()

	parts := make([]string, 0, len(files)+1)
	if t := strings.TrimSpace(rawText); t != "" {
		parts = append(parts, t)
	}
	for _, f := range files {
		text, err := b.extract(f)
		if err != nil {
			logging.Warnf("Skipping job description file %s: %v", f.Name, err)
			continue
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no job description text to analyze")
	}

	text, err := b.scorer.ExtractRequirements(ctx, strings.Join(parts, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("requirement extraction failed: %w", err)
	}

	return json.Marshal(analyzeResponse{RequirementsText: text})
}

// Score evaluates every CV against reqs and returns a JSON array with one
// element per file, in upload order. A CV that cannot be read or scored
// still gets an element so later files keep their position.
func (b *Backend) Score(ctx context.Context, reqs []models.Requirement, files []*models.FileRef) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveBackend("Scoring", b.Name(), start, err) }()

	items := make([]scoreItem, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, f := range files {
		g.Go(func() error {
			items[i] = b.scoreOne(gctx, f, reqs)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring cancelled: %w", err)
	}

	return json.Marshal(items)
}

func (b *Backend) scoreOne(ctx context.Context, f *models.FileRef, reqs []models.Requirement) scoreItem {
	item := scoreItem{File: f.Name}

	text, err := b.extract(f)
	if err != nil {
		logging.Warnf("Could not read CV %s: %v", f.Name, err)
		item.Error = err.Error()
		return item
	}

	score, err := b.scorer.ScoreCV(ctx, text, reqs)
	if err != nil {
		logging.Warnf("Could not score CV %s: %v", f.Name, err)
		item.Error = err.Error()
		return item
	}

	item.Name = score.Name
	item.Email = score.Email
	item.Overall = score.Overall
	logging.Debugf("Scored %s: %.1f", f.Name, score.Overall)
	return item
}
