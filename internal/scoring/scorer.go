package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fmuoria/CV-Analyzer/internal/models"
)

// Generator produces a text completion for a prompt
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// CVScore is the per-CV payload the scorer emits. Its field names follow the
// scoring response shape read by Rank.
type CVScore struct {
	Name    string  `json:"name,omitempty"`
	Email   string  `json:"email,omitempty"`
	Overall float64 `json:"overall"`
}

// Scorer evaluates job descriptions and CVs using an LLM
type Scorer struct {
	llmClient Generator
}

// NewScorer creates a new scorer instance
func NewScorer(llmClient Generator) *Scorer {
	return &Scorer{
		llmClient: llmClient,
	}
}

// ExtractRequirements asks the model for a comma-separated "label score"
// list describing the skills a job description asks for
func (s *Scorer) ExtractRequirements(ctx context.Context, jdText string) (string, error) {
	response, err := s.llmClient.GenerateContent(ctx, buildRequirementsPrompt(jdText))
	if err != nil {
		return "", fmt.Errorf("failed to get LLM response: %w", err)
	}
	return cleanRequirementsText(response), nil
}

// ScoreCV evaluates one CV against weighted requirements
func (s *Scorer) ScoreCV(ctx context.Context, cvText string, reqs []models.Requirement) (CVScore, error) {
	response, err := s.llmClient.GenerateContent(ctx, buildScoringPrompt(cvText, reqs))
	if err != nil {
		return CVScore{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	score, err := parseCVScore(response)
	if err != nil {
		return CVScore{}, fmt.Errorf("failed to parse scores: %w", err)
	}
	return score, nil
}

func buildRequirementsPrompt(jdText string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert technical recruiter. Read the job description below and list the skills it requires.\n\n")
	sb.WriteString("## JOB DESCRIPTION\n")
	sb.WriteString(jdText)
	sb.WriteString("\n\n")

	sb.WriteString("## OUTPUT FORMAT\n")
	sb.WriteString("Return a single line of comma-separated entries in the form \"<skill> <importance>\".\n")
	sb.WriteString("Importance is an integer from 1 (nice to have) to 5 (essential).\n")
	sb.WriteString("Example: python 5, sql 3, docker 2\n")
	sb.WriteString("Do not number the entries and do not add any other text.\n")

	return sb.String()
}

func buildScoringPrompt(cvText string, reqs []models.Requirement) string {
	var sb strings.Builder

	sb.WriteString("You are an expert HR analyst evaluating a candidate CV against weighted skill requirements.\n\n")

	sb.WriteString("## REQUIREMENTS\n")
	for _, r := range reqs {
		if r.Skill == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s (weight %.2f)\n", r.Skill, r.Weight))
	}

	sb.WriteString("\n## CV CONTENT\n")
	sb.WriteString(cvText)
	sb.WriteString("\n\n")

	sb.WriteString("## EVALUATION INSTRUCTIONS\n")
	sb.WriteString("Rate how well the candidate meets the requirements, giving higher weight more influence.\n")
	sb.WriteString("Provide your evaluation in the following JSON format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "name": "<candidate full name or empty>",` + "\n")
	sb.WriteString(`  "email": "<candidate email or empty>",` + "\n")
	sb.WriteString(`  "overall": <0-100>` + "\n")
	sb.WriteString("}\n\n")
	sb.WriteString("Return ONLY the JSON object, no additional text.\n")

	return sb.String()
}

// parseCVScore extracts the JSON object from a model response
func parseCVScore(response string) (CVScore, error) {
	response = CleanJSON(response)
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return CVScore{}, fmt.Errorf("no JSON found in response")
	}

	var score CVScore
	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), &score); err != nil {
		return CVScore{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return score, nil
}

// CleanJSON strips markdown code fences from model output
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)

	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")

	return strings.TrimSpace(clean)
}

// cleanRequirementsText flattens a model's requirement list onto one line
func cleanRequirementsText(response string) string {
	text := CleanJSON(response)
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })

	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}
