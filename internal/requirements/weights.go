package requirements

import (
	"math"
	"math/big"

	"github.com/tidwall/gjson"

	"github.com/fmuoria/CV-Analyzer/internal/coerce"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

var (
	hundred = big.NewInt(100)
	half    = big.NewRat(1, 2)
)

// Round2 rounds x to two decimal places. Ties are resolved away from zero on
// the exact binary value of x, so 1.005 (stored just below) rounds to 1 and
// 0.125 rounds to 0.13.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	return roundRat(new(big.Rat).SetFloat64(x))
}

// roundRat rounds r to two decimal places, ties away from zero
func roundRat(r *big.Rat) float64 {
	neg := r.Sign() < 0
	r = new(big.Rat).Abs(r)
	r.Mul(r, new(big.Rat).SetInt(hundred))

	n := new(big.Int).Quo(r.Num(), r.Denom())
	frac := new(big.Rat).Sub(r, new(big.Rat).SetInt(n))
	if frac.Cmp(half) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	out, _ := new(big.Rat).SetFrac(n, hundred).Float64()
	if neg {
		return -out
	}
	return out
}

// Sum adds the weights of reqs, treating non-finite weights as 0
func Sum(reqs []models.Requirement) float64 {
	total := 0.0
	for _, r := range reqs {
		if math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			continue
		}
		total += r.Weight
	}
	return total
}

// OverBudget reports whether the weights of reqs add up to more than 1
func OverBudget(reqs []models.Requirement) bool {
	return Sum(reqs) > 1
}

// FromStructured converts a structured requirements array returned by an
// analysis backend. Objects contribute their skill and a weight taken from
// "weight" when present, otherwise from a 1-5 "score" divided by 5. Bare
// strings become a requirement with weight 0. Values are kept as given:
// structured output is not titleized or renormalised.
func FromStructured(raw gjson.Result) []models.Requirement {
	if !raw.IsArray() {
		return []models.Requirement{}
	}

	elems := raw.Array()
	out := make([]models.Requirement, 0, len(elems))
	for _, e := range elems {
		switch {
		case e.Type == gjson.String:
			out = append(out, models.Requirement{Skill: e.Str})
		case e.IsObject():
			out = append(out, models.Requirement{
				Skill:  coerce.String(e.Get("skill"), ""),
				Weight: structuredWeight(e),
			})
		}
	}
	return out
}

func structuredWeight(e gjson.Result) float64 {
	if w := e.Get("weight"); w.Exists() && w.Type != gjson.Null {
		return coerce.Number(w)
	}
	if s := e.Get("score"); s.Exists() && s.Type != gjson.Null {
		score := clamp(int(math.Round(coerce.Number(s))), minScore, maxScore)
		return Round2(float64(score) / maxScore)
	}
	return 0
}
