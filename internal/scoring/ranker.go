package scoring

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/fmuoria/CV-Analyzer/internal/coerce"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

const (
	unknownName  = "Unknown"
	unknownEmail = "unknown"
)

// Rank normalises a raw scoring response into canonical candidates. The
// response may be a bare array, an object wrapping an "items" collection, or
// a single candidate object. Invalid JSON and any other shape yield an empty
// list. Candidate i is paired with files[i]; extra files are ignored and
// missing files leave File nil.
func Rank(raw []byte, files []*models.FileRef) []models.Candidate {
	if !gjson.ValidBytes(raw) {
		return []models.Candidate{}
	}
	return RankResult(gjson.ParseBytes(raw), files)
}

// RankResult is Rank for an already parsed response
func RankResult(data gjson.Result, files []*models.FileRef) []models.Candidate {
	items := Items(data)

	out := make([]models.Candidate, len(items))
	for i, it := range items {
		out[i] = candidate(i, it, files)
	}
	return out
}

// Items extracts the list of candidate payloads from a scoring response
func Items(data gjson.Result) []gjson.Result {
	switch {
	case data.IsArray():
		return data.Array()
	case data.IsObject():
		items := data.Get("items")
		switch {
		case items.IsArray():
			return items.Array()
		case items.IsObject():
			return []gjson.Result{items}
		case coerce.Truthy(items):
			// a scalar items field cannot be iterated
			return []gjson.Result{}
		}
		return []gjson.Result{data}
	}
	return []gjson.Result{}
}

func candidate(i int, it gjson.Result, files []*models.FileRef) models.Candidate {
	c := models.Candidate{
		ID:    coerce.String(it.Get("id"), fmt.Sprintf("cand_%d", i)),
		Name:  coerce.String(it.Get("name"), unknownName),
		Email: coerce.String(it.Get("email"), unknownEmail),
		Score: coerce.Number(firstPresent(it, "overall", "score")),
	}
	if i < len(files) {
		c.File = files[i]
	}
	return c
}

// firstPresent returns the first field that exists and is not null
func firstPresent(it gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := it.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// Sorted returns a copy of cands ordered by score. Ties keep their original
// relative order. The input slice is never modified.
func Sorted(cands []models.Candidate, descending bool) []models.Candidate {
	out := make([]models.Candidate, len(cands))
	copy(out, cands)

	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Score > out[j].Score
		}
		return out[i].Score < out[j].Score
	})
	return out
}
