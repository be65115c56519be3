// Package requirements turns free-form "label score" text into a weighted,
// normalised list of skill requirements.
package requirements

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fmuoria/CV-Analyzer/internal/coerce"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

const (
	minScore     = 1
	maxScore     = 5
	defaultScore = 5
)

// jsSpace is the ECMAScript WhiteSpace plus LineTerminator set.
const jsSpace = `\t\n\v\f\r \x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}`

var (
	// label, whitespace, then a one or two digit score at the very end
	segmentPattern = regexp.MustCompile(`([^\n\r\x{2028}\x{2029}]+?)[` + jsSpace + `]+([0-9]{1,2})$`)
	wordSeparator  = regexp.MustCompile(`[` + jsSpace + `]+`)
)

// Parser converts requirement text into weighted requirements. A Parser is
// immutable after construction and safe for concurrent use.
type Parser struct {
	exceptions map[string]string
}

// NewParser builds a parser with the standard abbreviation table
func NewParser() *Parser {
	return NewParserWithExceptions(DefaultExceptions())
}

// NewParserWithExceptions builds a parser with a custom casing table. Keys are
// matched against the lowercased word. The map is copied.
func NewParserWithExceptions(exceptions map[string]string) *Parser {
	table := make(map[string]string, len(exceptions))
	for k, v := range exceptions {
		table[strings.ToLower(k)] = v
	}
	return &Parser{exceptions: table}
}

// DefaultExceptions returns a fresh copy of the standard casing table
func DefaultExceptions() map[string]string {
	return map[string]string{
		"api":  "API",
		"sql":  "SQL",
		"json": "JSON",
		"n8n":  "n8n",
		"js":   "JS",
		"ui":   "UI",
		"ux":   "UX",
	}
}

var defaultParser = NewParser()

// Parse runs the default parser over input
func Parse(input string) []models.Requirement {
	return defaultParser.Parse(input)
}

// Titleize applies the default parser's casing rule to label
func Titleize(label string) string {
	return defaultParser.Titleize(label)
}

// Segments splits input on commas and extracts a label and clamped score
// from each non-empty segment. Labels are returned untitleized.
func (p *Parser) Segments(input string) []models.RawScoreItem {
	if input == "" {
		return []models.RawScoreItem{}
	}

	items := make([]models.RawScoreItem, 0, strings.Count(input, ",")+1)
	for _, chunk := range strings.Split(input, ",") {
		chunk = coerce.Trim(chunk)
		if chunk == "" {
			continue
		}

		label, score := chunk, defaultScore
		if m := segmentPattern.FindStringSubmatch(chunk); m != nil {
			label = coerce.Trim(m[1])
			n, _ := strconv.Atoi(m[2])
			score = clamp(n, minScore, maxScore)
		}
		items = append(items, models.RawScoreItem{Label: label, Score: score})
	}
	return items
}

// Parse converts comma-separated "label score" text into requirements. Each
// score becomes score/5; if the weights sum past 1 each becomes score/total
// instead. Weights are computed exactly from the integer scores and rounded
// half up to two decimals, so 3/8 gives 0.38. Parse never fails: input with no
// usable segments yields an empty list.
func (p *Parser) Parse(input string) []models.Requirement {
	items := p.Segments(input)

	total := int64(0)
	for _, it := range items {
		total += int64(it.Score)
	}
	denom := int64(maxScore)
	if total > maxScore {
		denom = total
	}

	out := make([]models.Requirement, len(items))
	for i, it := range items {
		out[i] = models.Requirement{
			Skill:  p.Titleize(it.Label),
			Weight: roundRat(big.NewRat(int64(it.Score), denom)),
		}
	}
	return out
}

// Titleize splits label on whitespace, replaces words found in the casing
// table and upper-cases the first character of every other word. Words are
// rejoined with single spaces.
func (p *Parser) Titleize(label string) string {
	words := wordSeparator.Split(label, -1)
	for i, w := range words {
		if special, ok := p.exceptions[strings.ToLower(w)]; ok {
			words[i] = special
			continue
		}
		words[i] = upperFirst(w)
	}
	return strings.Join(words, " ")
}

// upperFirst upper-cases the leading rune. Runes outside the BMP are left
// alone to match UTF-16 code unit casing.
func upperFirst(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 || r == utf8.RuneError || r > 0xFFFF {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}
