// Package coerce holds total conversions from loosely typed JSON values to Go
// values. Every failure mode maps to a fixed default so callers never branch
// on errors.
package coerce

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	decimalLiteral = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)
	infinityWord   = regexp.MustCompile(`^[+-]?Infinity$`)
	prefixedInt    = regexp.MustCompile(`^0(?:[xX][0-9a-fA-F]+|[oO][0-7]+|[bB][01]+)$`)
)

// Number converts v to a finite float64. Numbers pass through, numeric
// strings are parsed after trimming, booleans become 1 or 0, and a single
// element array converts its element. Everything else, and any result that
// is NaN or infinite, yields 0.
func Number(v gjson.Result) float64 {
	f := number(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func number(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		return stringNumber(v.Str)
	case gjson.True:
		return 1
	case gjson.False, gjson.Null:
		return 0
	case gjson.JSON:
		if !v.IsArray() {
			return math.NaN()
		}
		elems := v.Array()
		switch len(elems) {
		case 0:
			return 0
		case 1:
			return elementNumber(elems[0])
		}
		return math.NaN()
	}
	return math.NaN()
}

// elementNumber converts the sole element of an array the way its string
// form would convert.
func elementNumber(e gjson.Result) float64 {
	switch e.Type {
	case gjson.Null:
		return 0
	case gjson.True, gjson.False:
		return math.NaN()
	case gjson.JSON:
		if e.IsArray() {
			return number(e)
		}
		return math.NaN()
	}
	return number(e)
}

func stringNumber(s string) float64 {
	s = Trim(s)
	if s == "" {
		return 0
	}
	if infinityWord.MatchString(s) {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	if prefixedInt.MatchString(s) {
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return math.NaN()
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f
	}
	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	// out of range literals come back as ±Inf or 0 with an error
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Truthy reports whether v counts as set: a non-empty string, a non-zero
// number, true, or any object or array.
func Truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case gjson.True, gjson.JSON:
		return true
	}
	return false
}

// String returns the display form of a truthy value and fallback otherwise
func String(v gjson.Result, fallback string) string {
	if !Truthy(v) {
		return fallback
	}
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return FormatNumber(v.Num)
	case gjson.True:
		return "true"
	}
	return v.Raw
}

// FormatNumber renders f the way a JavaScript number prints: plain decimal
// notation between 1e-7 and 1e21, exponent notation outside it.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Trim strips the JavaScript whitespace set from both ends of s
func Trim(s string) string {
	return strings.TrimFunc(s, IsSpace)
}

// IsSpace reports whether r is JavaScript whitespace or a line terminator
func IsSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00A0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}
