package forces

import (
	"strconv"
	"strings"
	"unicode"
)

// naturalLess orders strings so that embedded numbers compare by value:
// "A2" < "A10". Text chunks compare case-insensitively.
func naturalLess(a, b string) bool {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		xn, xerr := strconv.ParseUint(x, 10, 64)
		yn, yerr := strconv.ParseUint(y, 10, 64)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				return xn < yn
			}
		case xerr == nil:
			return true
		case yerr == nil:
			return false
		default:
			lx, ly := strings.ToLower(x), strings.ToLower(y)
			if lx != ly {
				return lx < ly
			}
		}
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}

func chunks(s string) []string {
	var out []string
	start := 0
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsDigit(r) != unicode.IsDigit(prev) {
			out = append(out, s[start:i])
			start = i
		}
		prev = r
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// sortedPair returns the two types in natural order.
func sortedPair(type1, type2 string) []string {
	if naturalLess(type2, type1) {
		return []string{type2, type1}
	}
	return []string{type1, type2}
}
