package models

import "math"

// Requirement is a weighted skill label used to score candidates
type Requirement struct {
	Skill  string  `json:"skill"`
	Weight float64 `json:"weight"`
}

// RawScoreItem is a parsed "label score" segment before weighting
type RawScoreItem struct {
	Label string `json:"label"`
	Score int    `json:"score"` // 1-5
}

// FileRef points at an uploaded document. Candidates reference files by
// position in the upload batch only.
type FileRef struct {
	Name        string `json:"name"`
	Path        string `json:"-"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Candidate is the canonical record produced from a scoring response
type Candidate struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Score float64  `json:"score"`
	File  *FileRef `json:"file"`
}

// Percent returns the score as a display percentage clamped to 0-100
func (c Candidate) Percent() float64 {
	return math.Max(0, math.Min(100, c.Score))
}

// Band returns the display band for the candidate's score
func (c Candidate) Band() ScoreBand {
	return BandFor(c.Score)
}

// ScoreBand groups display percentages into colour bands
type ScoreBand string

const (
	BandExcellent ScoreBand = "excellent" // >= 70
	BandGood      ScoreBand = "good"      // 40-69
	BandPoor      ScoreBand = "poor"      // < 40
)

// BandFor maps a raw score onto its band after clamping to 0-100
func BandFor(score float64) ScoreBand {
	v := math.Max(0, math.Min(100, score))
	switch {
	case v >= 70:
		return BandExcellent
	case v >= 40:
		return BandGood
	default:
		return BandPoor
	}
}

// RequirementSource records how an analysis produced its requirements
type RequirementSource string

const (
	SourceStructured RequirementSource = "structured"
	SourceParsed     RequirementSource = "parsed"
)

// AnalyzeResult is the host-side outcome of a job description analysis
type AnalyzeResult struct {
	JDID         string            `json:"jd_id,omitempty"`
	Requirements []Requirement     `json:"requirements"`
	Source       RequirementSource `json:"source"`
}

// RequirementsResponse is returned by the requirements endpoints
type RequirementsResponse struct {
	JDID         string        `json:"jd_id,omitempty"`
	Requirements []Requirement `json:"requirements"`
	WeightSum    float64       `json:"weight_sum"`
	OverBudget   bool          `json:"over_budget"`
}

// RequirementPatch updates selected fields of one requirement row
type RequirementPatch struct {
	Skill  *string  `json:"skill,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// CandidatesResponse is returned by the scoring and candidate endpoints
type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
	Order      string      `json:"order"`
	Count      int         `json:"count"`
}
