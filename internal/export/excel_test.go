package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/CV-Analyzer/internal/models"
)

func sampleCandidates() []models.Candidate {
	return []models.Candidate{
		{ID: "cand_0", Name: "Ada", Email: "ada@example.com", Score: 35, File: &models.FileRef{Name: "ada.pdf", Path: "/tmp/ada.pdf"}},
		{ID: "cand_1", Name: "Bob", Email: "bob@example.com", Score: 120, File: &models.FileRef{Name: "bob.pdf"}},
		{ID: "cand_2", Name: "Cy", Email: "unknown", Score: 55},
	}
}

func sampleRequirements() []models.Requirement {
	return []models.Requirement{{Skill: "Python", Weight: 0.63}, {Skill: "SQL", Weight: 0.38}}
}

// TestExportToExcel_EnsuresXlsxExtension tests that .xlsx extension is added if missing
func TestExportToExcel_EnsuresXlsxExtension(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "missing extension", path: "report", want: "report.xlsx"},
		{name: "existing extension", path: "report.xlsx", want: "report.xlsx"},
		{name: "upper case extension", path: "REPORT.XLSX", want: "REPORT.XLSX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			got, err := ExportToExcel(sampleRequirements(), sampleCandidates(), "jd-1", filepath.Join(dir, tt.path))
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
			assert.FileExists(t, got)
		})
	}
}

func TestExportToExcel_MissingDirectory(t *testing.T) {
	_, err := ExportToExcel(nil, nil, "", filepath.Join(t.TempDir(), "missing", "report.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save Excel file")
}

func TestReportContents(t *testing.T) {
	var buf bytes.Buffer
	report := Report{JDID: "jd-42", Requirements: sampleRequirements(), Candidates: sampleCandidates()}
	require.NoError(t, report.Write(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, RequirementsSheet, CandidatesSheet}, f.GetSheetList())

	jd, err := f.GetCellValue(SummarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "jd-42", jd)

	rows, err := f.GetRows(CandidatesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Rank", "Candidate", "Email", "Score %", "Band", "CV"}, rows[0])
	assert.Equal(t, []string{"1", "Bob", "bob@example.com", "100", "excellent", "bob.pdf"}, rows[1])
	assert.Equal(t, "Cy", rows[2][1])
	assert.Equal(t, "good", rows[2][4])
	assert.Equal(t, "poor", rows[3][4])

	link, target, err := f.GetCellHyperLink(CandidatesSheet, "F4")
	require.NoError(t, err)
	assert.True(t, link)
	assert.Contains(t, target, "ada.pdf")

	reqRows, err := f.GetRows(RequirementsSheet)
	require.NoError(t, err)
	require.Len(t, reqRows, 4)
	assert.Equal(t, "Python", reqRows[1][1])
	assert.Equal(t, "Total", reqRows[3][1])
	assert.Equal(t, "1.01", reqRows[3][2])
}

func TestReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report{}.Write(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	jd, err := f.GetCellValue(SummarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "n/a", jd)

	rows, err := f.GetRows(CandidatesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSummarize(t *testing.T) {
	stats := Summarize(sampleCandidates())

	assert.Equal(t, 1, stats.Bands[models.BandExcellent])
	assert.Equal(t, 1, stats.Bands[models.BandGood])
	assert.Equal(t, 1, stats.Bands[models.BandPoor])
	assert.InDelta(t, 63.33, stats.Average, 0.01)
	assert.Equal(t, 100.0, stats.Highest)
	assert.Equal(t, 35.0, stats.Lowest)

	empty := Summarize(nil)
	assert.Empty(t, empty.Bands)
	assert.Zero(t, empty.Average)
}
