package main

import (
	"context"
	"fmt"

	"github.com/fmuoria/CV-Analyzer/internal/agent"
	"github.com/fmuoria/CV-Analyzer/internal/config"
	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/llm"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/webhook"
)

// newSession validates cfg and builds a session on the configured backend.
// The returned func releases backend resources.
func newSession(ctx context.Context, cfg *config.Config) (*agent.Session, *ingestion.FileHandler, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.ApplyToEnv()

	files := ingestion.NewFileHandler(cfg.UploadsDir)

	if cfg.UseWebhook() {
		logging.Infof("Using analysis service at %s", cfg.APIURL)
		client := webhook.NewClient(cfg.APIURL, cfg.RequestTimeout())
		return agent.NewSession(client, cfg.MaxCVFiles), files, func() {}, nil
	}

	vertex, err := llm.NewVertexAIClient(ctx, llm.Options{
		ProjectID:       cfg.GoogleCloudProject,
		Location:        cfg.GoogleCloudLocation,
		Model:           cfg.GeminiModel,
		CredentialsFile: cfg.GoogleCredentialsPath,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	logging.Infof("Using Gemini model %s in %s/%s", cfg.GeminiModel, cfg.GoogleCloudProject, cfg.GoogleCloudLocation)

	closeFn := func() {
		if err := vertex.Close(); err != nil {
			logging.Warnf("Failed to close Vertex AI client: %v", err)
		}
	}
	return agent.NewSession(llm.NewBackend(vertex), cfg.MaxCVFiles), files, closeFn, nil
}
