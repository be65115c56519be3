package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/fmuoria/CV-Analyzer/internal/coerce"
	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/metrics"
	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/requirements"
	"github.com/fmuoria/CV-Analyzer/internal/scoring"
)

// DefaultMaxCVFiles caps how many CVs one scoring run accepts
const DefaultMaxCVFiles = 10

var (
	ErrNoRequirements  = errors.New("no requirements to score against")
	ErrNoFiles         = errors.New("no CV files selected")
	ErrIndexOutOfRange = errors.New("requirement index out of range")
)

// fields checked in order for free-text requirements in an analysis response
var requirementTextFields = []string{"requirements_text", "output", "result", "text"}

// Backend performs job description analysis and CV scoring. Both calls return
// the raw JSON response body.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, rawText string, files []*models.FileRef) ([]byte, error)
	Score(ctx context.Context, reqs []models.Requirement, files []*models.FileRef) ([]byte, error)
}

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// Session holds the state of one analysis: the job description id, the
// editable requirement list, the selected CVs and the scored candidates.
type Session struct {
	backend    Backend
	parser     *requirements.Parser
	maxCVFiles int

	mu           sync.RWMutex
	jdID         string
	requirements []models.Requirement
	cvFiles      []*models.FileRef
	candidates   []models.Candidate
	sortDesc     bool
	progressCb   ProgressCallback
}

// NewSession creates a session that talks to backend
func NewSession(backend Backend, maxCVFiles int) *Session {
	if maxCVFiles <= 0 {
		maxCVFiles = DefaultMaxCVFiles
	}
	return &Session{
		backend:      backend,
		parser:       requirements.NewParser(),
		maxCVFiles:   maxCVFiles,
		requirements: []models.Requirement{},
		candidates:   []models.Candidate{},
		sortDesc:     true,
	}
}

// BackendName reports which backend the session uses
func (s *Session) BackendName() string {
	return s.backend.Name()
}

// MaxCVFiles returns the CV cap for a scoring run
func (s *Session) MaxCVFiles() int {
	return s.maxCVFiles
}

// SetProgressCallback sets the progress callback function
func (s *Session) SetProgressCallback(cb ProgressCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressCb = cb
}

func (s *Session) reportProgress(current, total int, message string) {
	s.mu.RLock()
	cb := s.progressCb
	s.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// Analyze sends the job description to the backend and replaces the
// requirement list with the result. On error the session is unchanged.
func (s *Session) Analyze(ctx context.Context, rawText string, files []*models.FileRef) (models.AnalyzeResult, error) {
	s.reportProgress(0, 100, "Analyzing job description...")

	body, err := s.backend.Analyze(ctx, rawText, files)
	if err != nil {
		s.reportProgress(100, 100, "Analysis failed")
		return models.AnalyzeResult{}, fmt.Errorf("analyze: %w", err)
	}

	result := s.interpretAnalysis(gjson.ParseBytes(body))
	metrics.ObserveRequirements(string(result.Source), len(result.Requirements))
	logging.Infof("Analysis produced %d requirement(s) (%s)", len(result.Requirements), result.Source)

	s.mu.Lock()
	s.jdID = result.JDID
	s.requirements = cloneRequirements(result.Requirements)
	s.mu.Unlock()

	s.reportProgress(100, 100, "Analysis complete!")
	return result, nil
}

// interpretAnalysis reads an analysis response: a structured requirements
// array wins, otherwise the first set text field is parsed
func (s *Session) interpretAnalysis(out gjson.Result) models.AnalyzeResult {
	result := models.AnalyzeResult{
		JDID:         coerce.String(out.Get("jd_id"), ""),
		Requirements: []models.Requirement{},
		Source:       models.SourceParsed,
	}

	if reqs := out.Get("requirements"); reqs.IsArray() {
		result.Requirements = requirements.FromStructured(reqs)
		result.Source = models.SourceStructured
		return result
	}

	for _, field := range requirementTextFields {
		v := out.Get(field)
		if !coerce.Truthy(v) {
			continue
		}
		if v.Type == gjson.String {
			result.Requirements = s.parser.Parse(v.Str)
		}
		break
	}
	return result
}

// Requirements returns a copy of the current requirement list
func (s *Session) Requirements() []models.Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRequirements(s.requirements)
}

// SetRequirements replaces the requirement list
func (s *Session) SetRequirements(reqs []models.Requirement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirements = cloneRequirements(reqs)
}

// UpdateRequirement applies patch to the requirement at index i
func (s *Session) UpdateRequirement(i int, patch models.RequirementPatch) (models.Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.requirements) {
		return models.Requirement{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if patch.Skill != nil {
		s.requirements[i].Skill = *patch.Skill
	}
	if patch.Weight != nil {
		s.requirements[i].Weight = *patch.Weight
	}
	return s.requirements[i], nil
}

// AddRequirement appends an empty row with a weight of 0.1
func (s *Session) AddRequirement() models.Requirement {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := models.Requirement{Skill: "", Weight: 0.1}
	s.requirements = append(s.requirements, r)
	return r
}

// RemoveRequirement deletes the requirement at index i
func (s *Session) RemoveRequirement(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.requirements) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	s.requirements = append(s.requirements[:i:i], s.requirements[i+1:]...)
	return nil
}

// WeightSum returns the sum of the current weights
func (s *Session) WeightSum() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return requirements.Sum(s.requirements)
}

// RequirementsView bundles the list with its weight sum
func (s *Session) RequirementsView() models.RequirementsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := requirements.Sum(s.requirements)
	return models.RequirementsResponse{
		JDID:         s.jdID,
		Requirements: cloneRequirements(s.requirements),
		WeightSum:    sum,
		OverBudget:   sum > 1,
	}
}

// JDID returns the id the analysis service assigned to the job description
func (s *Session) JDID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jdID
}

// SetCVFiles selects the CVs for the next scoring run. Files past the cap
// are dropped; the number dropped is returned.
func (s *Session) SetCVFiles(files []*models.FileRef) int {
	kept := ingestion.LimitFiles(files, s.maxCVFiles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cvFiles = append([]*models.FileRef(nil), kept...)
	return len(files) - len(kept)
}

// CVFiles returns the selected CVs in upload order
func (s *Session) CVFiles() []*models.FileRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.FileRef(nil), s.cvFiles...)
}

// Score sends the requirements and selected CVs to the backend and replaces
// the candidate list with the normalised response. It returns the candidates
// in the current sort direction. On error the candidate list is unchanged.
func (s *Session) Score(ctx context.Context) ([]models.Candidate, error) {
	s.mu.RLock()
	reqs := cloneRequirements(s.requirements)
	files := append([]*models.FileRef(nil), s.cvFiles...)
	s.mu.RUnlock()

	if len(reqs) == 0 {
		return nil, ErrNoRequirements
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	logging.Infof("Scoring %d CV(s) against %d requirement(s) via %s", len(files), len(reqs), s.backend.Name())
	s.reportProgress(10, 100, fmt.Sprintf("Scoring %d CV(s)...", len(files)))

	body, err := s.backend.Score(ctx, reqs, files)
	if err != nil {
		s.reportProgress(100, 100, "Scoring failed")
		return nil, fmt.Errorf("score: %w", err)
	}

	s.reportProgress(90, 100, "Ranking candidates...")
	cands := scoring.Rank(body, files)
	metrics.ObserveCandidates(len(cands))

	s.mu.Lock()
	s.candidates = cands
	desc := s.sortDesc
	s.mu.Unlock()

	s.reportProgress(100, 100, "Scoring complete!")
	return scoring.Sorted(cands, desc), nil
}

// Candidates returns the scored candidates ordered by score
func (s *Session) Candidates(descending bool) []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoring.Sorted(s.candidates, descending)
}

// SortedCandidates returns the candidates in the session's sort direction
func (s *Session) SortedCandidates() []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoring.Sorted(s.candidates, s.sortDesc)
}

// ToggleSort flips the sort direction and returns the new one
func (s *Session) ToggleSort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortDesc = !s.sortDesc
	return s.sortDesc
}

// SortDescending reports the current sort direction
func (s *Session) SortDescending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortDesc
}

// Reset clears all session state
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jdID = ""
	s.requirements = []models.Requirement{}
	s.cvFiles = nil
	s.candidates = []models.Candidate{}
	s.sortDesc = true
}

func cloneRequirements(reqs []models.Requirement) []models.Requirement {
	out := make([]models.Requirement, len(reqs))
	copy(out, reqs)
	return out
}
