package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/requirements"
	"github.com/fmuoria/CV-Analyzer/internal/scoring"
)

const (
	SummarySheet      = "Summary"
	RequirementsSheet = "Requirements"
	CandidatesSheet   = "Ranked Candidates"

	headerColor = "4472C4"
	linkColor   = "0563C1"
)

var bandColors = map[models.ScoreBand]string{
	models.BandExcellent: "C6EFCE",
	models.BandGood:      "FFEB9C",
	models.BandPoor:      "FFC7CE",
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// Report is the content of one exported workbook
type Report struct {
	JDID         string
	Requirements []models.Requirement
	Candidates   []models.Candidate
	Generated    time.Time
}

// ExportToExcel writes the requirements and ranked candidates to an Excel
// file at outputPath, adding the .xlsx extension when missing
func ExportToExcel(reqs []models.Requirement, cands []models.Candidate, jdID, outputPath string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	var buf bytes.Buffer
	report := Report{JDID: jdID, Requirements: reqs, Candidates: cands, Generated: time.Now()}
	if err := report.Write(&buf); err != nil {
		return "", err
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}
	return outputPath, nil
}

// Write renders the workbook into w
func (r Report) Write(w io.Writer) error {
	f, err := r.build()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (r Report) build() (*excelize.File, error) {
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	ranked := scoring.Sorted(r.Candidates, true)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{RequirementsSheet, CandidatesSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	steps := []struct {
		name string
		fn   func(*excelize.File) error
	}{
		{SummarySheet, func(f *excelize.File) error { return r.summarySheet(f, ranked) }},
		{RequirementsSheet, r.requirementsSheet},
		{CandidatesSheet, func(f *excelize.File) error { return candidatesSheet(f, ranked) }},
	}
	for _, step := range steps {
		if err := step.fn(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create %s sheet: %w", strings.ToLower(step.name), err)
		}
	}
	return f, nil
}

// summarySheet writes the job details and score statistics
func (r Report) summarySheet(f *excelize.File, ranked []models.Candidate) error {
	sheet := SummarySheet
	f.SetColWidth(sheet, "A", "A", 28)
	f.SetColWidth(sheet, "B", "B", 40)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	heading := func(title string) {
		a, b := cell("A", row), cell("B", row)
		f.SetCellValue(sheet, a, title)
		f.SetCellStyle(sheet, a, b, headerStyle)
		f.MergeCell(sheet, a, b)
		row++
	}
	line := func(label string, value interface{}) {
		f.SetCellValue(sheet, cell("A", row), label)
		f.SetCellStyle(sheet, cell("A", row), cell("A", row), labelStyle)
		f.SetCellValue(sheet, cell("B", row), value)
		row++
	}

	heading("CV Analysis Report")
	row++
	jdID := r.JDID
	if jdID == "" {
		jdID = "n/a"
	}
	sum := requirements.Sum(r.Requirements)
	line("Job Description ID:", jdID)
	line("Generated:", r.Generated.Format("2006-01-02 15:04:05"))
	line("Requirements:", len(r.Requirements))
	line("Weight Sum:", fmt.Sprintf("%.2f", sum))
	if sum > 1 {
		line("Note:", "Weights add up to more than 1.00")
	}
	line("Candidates Scored:", len(ranked))
	row++

	if len(ranked) == 0 {
		return nil
	}

	stats := Summarize(ranked)
	heading("Statistics:")
	line("Excellent (70-100):", stats.Bands[models.BandExcellent])
	line("Good (40-69):", stats.Bands[models.BandGood])
	line("Poor (<40):", stats.Bands[models.BandPoor])
	row++
	line("Average Score:", fmt.Sprintf("%.2f", stats.Average))
	line("Highest Score:", fmt.Sprintf("%.2f", stats.Highest))
	line("Lowest Score:", fmt.Sprintf("%.2f", stats.Lowest))
	return nil
}

func (r Report) requirementsSheet(f *excelize.File) error {
	sheet := RequirementsSheet
	f.SetColWidth(sheet, "A", "A", 6)
	f.SetColWidth(sheet, "B", "B", 40)
	f.SetColWidth(sheet, "C", "C", 12)

	if err := writeHeaders(f, sheet, []string{"#", "Skill", "Weight"}); err != nil {
		return err
	}
	for i, req := range r.Requirements {
		row := i + 2
		f.SetCellValue(sheet, cell("A", row), i+1)
		f.SetCellValue(sheet, cell("B", row), req.Skill)
		f.SetCellValue(sheet, cell("C", row), requirements.Round2(req.Weight))
	}

	total := len(r.Requirements) + 2
	f.SetCellValue(sheet, cell("B", total), "Total")
	f.SetCellValue(sheet, cell("C", total), requirements.Round2(requirements.Sum(r.Requirements)))
	return freezeHeader(f, sheet)
}

// candidatesSheet writes one colour-coded row per candidate, best first
func candidatesSheet(f *excelize.File, ranked []models.Candidate) error {
	sheet := CandidatesSheet
	for col, width := range map[string]float64{"A": 8, "B": 25, "C": 30, "D": 12, "E": 12, "F": 30} {
		f.SetColWidth(sheet, col, col, width)
	}

	if err := writeHeaders(f, sheet, []string{"Rank", "Candidate", "Email", "Score %", "Band", "CV"}); err != nil {
		return err
	}

	rowStyles := make(map[models.ScoreBand]int, len(bandColors))
	linkStyles := make(map[models.ScoreBand]int, len(bandColors))
	for band, color := range bandColors {
		fill := excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
		s, err := f.NewStyle(&excelize.Style{Fill: fill, Border: thinBorder})
		if err != nil {
			return err
		}
		rowStyles[band] = s
		s, err = f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Color: linkColor, Underline: "single"},
			Fill:   fill,
			Border: thinBorder,
		})
		if err != nil {
			return err
		}
		linkStyles[band] = s
	}

	for i, c := range ranked {
		row := i + 2
		band := c.Band()
		f.SetCellValue(sheet, cell("A", row), i+1)
		f.SetCellValue(sheet, cell("B", row), c.Name)
		f.SetCellValue(sheet, cell("C", row), c.Email)
		f.SetCellValue(sheet, cell("D", row), requirements.Round2(c.Percent()))
		f.SetCellValue(sheet, cell("E", row), string(band))
		f.SetCellStyle(sheet, cell("A", row), cell("F", row), rowStyles[band])

		if c.File == nil {
			continue
		}
		fileCell := cell("F", row)
		f.SetCellValue(sheet, fileCell, c.File.Name)
		if c.File.Path != "" {
			f.SetCellHyperLink(sheet, fileCell, fileURL(c.File.Path), "External")
			f.SetCellStyle(sheet, fileCell, fileCell, linkStyles[band])
		}
	}

	if len(ranked) > 0 {
		f.AutoFilter(sheet, fmt.Sprintf("A1:F%d", len(ranked)+1), []excelize.AutoFilterOptions{})
	}
	return freezeHeader(f, sheet)
}

// Stats summarises a candidate list
type Stats struct {
	Bands   map[models.ScoreBand]int
	Average float64
	Highest float64
	Lowest  float64
}

// Summarize computes band counts and score statistics on the clamped
// percentages
func Summarize(cands []models.Candidate) Stats {
	stats := Stats{Bands: map[models.ScoreBand]int{}}
	if len(cands) == 0 {
		return stats
	}

	stats.Highest = cands[0].Percent()
	stats.Lowest = cands[0].Percent()
	var total float64
	for _, c := range cands {
		p := c.Percent()
		stats.Bands[c.Band()]++
		total += p
		stats.Highest = max(stats.Highest, p)
		stats.Lowest = min(stats.Lowest, p)
	}
	stats.Average = total / float64(len(cands))
	return stats
}

func writeHeaders(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}
	for col, header := range headers {
		name, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, name, header)
		f.SetCellStyle(sheet, name, name, style)
	}
	return nil
}

func freezeHeader(f *excelize.File, sheet string) error {
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file:///" + strings.TrimPrefix(strings.ReplaceAll(abs, "\\", "/"), "/")
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
