package gui

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fmuoria/CV-Analyzer/internal/models"
)

func fileList(paths []string) string {
	if len(paths) == 0 {
		return "No files selected"
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// parseWeight accepts finite non-negative numbers only
func parseWeight(text string) (float64, bool) {
	w, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0, false
	}
	return w, true
}

func weightBadgeText(sum float64) string {
	text := fmt.Sprintf("Weight sum: %.2f", sum)
	if sum > 1 {
		text += " (over 1.00)"
	}
	return text
}

func sortLabel(desc bool) string {
	if desc {
		return "Sort: High → Low"
	}
	return "Sort: Low → High"
}

// candidateRow renders one results table row. rank is 1-based.
func candidateRow(rank int, c models.Candidate) []string {
	file := ""
	if c.File != nil {
		file = c.File.Name
	}
	return []string{
		strconv.Itoa(rank),
		c.Name,
		c.Email,
		fmt.Sprintf("%.0f%%", c.Percent()),
		file,
	}
}
