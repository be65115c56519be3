package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/fmuoria/CV-Analyzer/internal/models"
)

func testFiles(names ...string) []*models.FileRef {
	files := make([]*models.FileRef, len(names))
	for i, n := range names {
		files[i] = &models.FileRef{Name: n, Size: int64(100 * (i + 1)), ContentType: "application/pdf"}
	}
	return files
}

// TestRankSingleCandidate tests a bare array with one scored entry
func TestRankSingleCandidate(t *testing.T) {
	files := testFiles("ada.pdf")

	got := Rank([]byte(`[{"overall": 87, "name": "Ada"}]`), files)

	require.Len(t, got, 1)
	assert.Equal(t, models.Candidate{
		ID:    "cand_0",
		Name:  "Ada",
		Email: "unknown",
		Score: 87,
		File:  files[0],
	}, got[0])
}

// TestRankEmptyObject tests that a bare object is one all-default candidate
func TestRankEmptyObject(t *testing.T) {
	got := Rank([]byte(`{}`), nil)

	require.Len(t, got, 1)
	assert.Equal(t, models.Candidate{ID: "cand_0", Name: "Unknown", Email: "unknown", Score: 0}, got[0])
	assert.Nil(t, got[0].File)
}

func TestRankShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNames []string
	}{
		{name: "bare array", raw: `[{"name":"A"},{"name":"B"}]`, wantNames: []string{"A", "B"}},
		{name: "items wrapper", raw: `{"items":[{"name":"A"},{"name":"B"},{"name":"C"}]}`, wantNames: []string{"A", "B", "C"}},
		{name: "empty items", raw: `{"items":[]}`, wantNames: []string{}},
		{name: "items object", raw: `{"items":{"name":"Solo"}}`, wantNames: []string{"Solo"}},
		{name: "items scalar", raw: `{"items":"x"}`, wantNames: []string{}},
		{name: "falsy items", raw: `{"items":null,"name":"Self"}`, wantNames: []string{"Self"}},
		{name: "bare object", raw: `{"name":"Self","overall":5}`, wantNames: []string{"Self"}},
		{name: "empty array", raw: `[]`, wantNames: []string{}},
		{name: "null", raw: `null`, wantNames: []string{}},
		{name: "number", raw: `42`, wantNames: []string{}},
		{name: "string", raw: `"hello"`, wantNames: []string{}},
		{name: "invalid json", raw: `{"items":[`, wantNames: []string{}},
		{name: "empty body", raw: ``, wantNames: []string{}},
		{name: "null element", raw: `[null,{"name":"B"}]`, wantNames: []string{"Unknown", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank([]byte(tt.raw), nil)
			require.NotNil(t, got)

			names := make([]string, len(got))
			for i, c := range got {
				names[i] = c.Name
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestRankFields(t *testing.T) {
	raw := `[
		{"id": "x1", "name": "Ada", "email": "ada@example.com", "overall": 91, "score": 10},
		{"id": "", "name": "", "email": 0, "overall": null, "score": "72.5"},
		{"id": 7, "score": "abc"},
		{"overall": "1e400"},
		{"overall": true},
		{"overall": [64]},
		{"overall": 0, "score": 99}
	]`

	got := Rank([]byte(raw), testFiles("a.pdf", "b.pdf"))
	require.Len(t, got, 7)

	assert.Equal(t, "x1", got[0].ID)
	assert.Equal(t, "ada@example.com", got[0].Email)
	assert.Equal(t, 91.0, got[0].Score, "overall wins over score")

	assert.Equal(t, "cand_1", got[1].ID)
	assert.Equal(t, "Unknown", got[1].Name)
	assert.Equal(t, "unknown", got[1].Email)
	assert.Equal(t, 72.5, got[1].Score, "null overall falls through to score")

	assert.Equal(t, "7", got[2].ID)
	assert.Equal(t, 0.0, got[2].Score)

	assert.Equal(t, 0.0, got[3].Score, "non-finite scores become zero")
	assert.Equal(t, 1.0, got[4].Score)
	assert.Equal(t, 64.0, got[5].Score)
	assert.Equal(t, 0.0, got[6].Score, "present zero overall is kept")

	assert.Equal(t, "a.pdf", got[0].File.Name)
	assert.Equal(t, "b.pdf", got[1].File.Name)
	for _, c := range got[2:] {
		assert.Nil(t, c.File)
	}
}

func TestRankExtraFilesIgnored(t *testing.T) {
	got := Rank([]byte(`[{"name":"A"}]`), testFiles("a.pdf", "b.pdf", "c.pdf"))
	require.Len(t, got, 1)
	assert.Equal(t, "a.pdf", got[0].File.Name)
}

func TestRankResult(t *testing.T) {
	got := RankResult(gjson.Parse(`{"items":[{"overall":"88"}]}`), nil)
	require.Len(t, got, 1)
	assert.Equal(t, 88.0, got[0].Score)
}

func TestSorted(t *testing.T) {
	cands := []models.Candidate{
		{ID: "a", Score: 50},
		{ID: "b", Score: 90},
		{ID: "c", Score: 50},
		{ID: "d", Score: 10},
	}
	original := append([]models.Candidate(nil), cands...)

	desc := Sorted(cands, true)
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids(desc))

	asc := Sorted(cands, false)
	assert.Equal(t, []string{"d", "a", "c", "b"}, ids(asc), "ties keep input order")

	assert.Equal(t, original, cands, "input must not be reordered")
	assert.Equal(t, desc, Sorted(desc, true), "sorting is idempotent")
	assert.Equal(t, desc, Sorted(Sorted(cands, false), true), "toggling back restores order")
	assert.Empty(t, Sorted(nil, true))
}

func ids(cands []models.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}
