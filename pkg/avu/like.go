package avu

import "strings"

// Like reports whether s matches pattern, where '%' matches any run of
// characters, '_' matches exactly one and '\' makes the next character
// literal. Matching is case-sensitive.
func Like(pattern, s string) bool {
	p := compileLike(pattern)
	r := []rune(s)

	// greedy match with backtracking to the last '%'
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && p[pi].any:
			star, mark = pi, si
			pi++
		case pi < len(p) && (p[pi].one || p[pi].lit == r[si]):
			pi++
			si++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi].any {
		pi++
	}
	return pi == len(p)
}

type likeToken struct {
	lit rune
	any bool
	one bool
}

func compileLike(pattern string) []likeToken {
	var toks []likeToken
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			toks = append(toks, likeToken{lit: c})
			escaped = false
		case c == '\\':
			escaped = true
		case c == '%':
			if len(toks) > 0 && toks[len(toks)-1].any {
				continue
			}
			toks = append(toks, likeToken{any: true})
		case c == '_':
			toks = append(toks, likeToken{one: true})
		default:
			toks = append(toks, likeToken{lit: c})
		}
	}
	if escaped {
		toks = append(toks, likeToken{lit: '\\'})
	}
	return toks
}

// likePrefix returns the literal text every match of pattern starts with.
func likePrefix(pattern string) string {
	var b strings.Builder
	for _, t := range compileLike(pattern) {
		if t.any || t.one {
			break
		}
		b.WriteRune(t.lit)
	}
	return b.String()
}

// EscapeLike quotes the wildcard and escape characters of s so that it
// matches literally inside a Like pattern.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
