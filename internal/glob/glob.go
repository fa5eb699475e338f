// Package glob implements glob-style pattern matching used to decide
// whether a chat message should be dispatched.
//
// Supported syntax:
//
//	*       any run of characters, including none
//	?       exactly one character
//	[abc]   one character out of the class; [^abc] negates, [a-z] is a range
//	\x      the literal character x (also inside classes)
//
// Matching is done on runes, so '?' consumes one Unicode character.
// The matcher backtracks on '*' without memoization; it is meant for short
// user-authored patterns against chat-sized inputs.
package glob

import "unicode"

// Match reports whether text matches pattern. When nocase is set,
// letters are compared case-insensitively.
func Match(pattern, text string, nocase bool) bool {
	return match([]rune(pattern), []rune(text), nocase)
}

// MatchAny reports whether text matches at least one of the patterns.
func MatchAny(patterns []string, text string, nocase bool) bool {
	t := []rune(text)
	for _, p := range patterns {
		if match([]rune(p), t, nocase) {
			return true
		}
	}
	return false
}

func match(p, s []rune, nocase bool) bool {
	for len(p) > 0 && len(s) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}
			if len(p) == 1 {
				return true
			}
			for len(s) > 0 {
				if match(p[1:], s, nocase) {
					return true
				}
				s = s[1:]
			}
			return false
		case '?':
			p, s = p[1:], s[1:]
		case '[':
			var ok bool
			p, ok = matchClass(p[1:], s[0], nocase)
			if !ok {
				return false
			}
			s = s[1:]
		case '\\':
			if len(p) >= 2 {
				p = p[1:]
			}
			fallthrough
		default:
			if !equal(p[0], s[0], nocase) {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}

	if len(s) == 0 {
		for len(p) > 0 && p[0] == '*' {
			p = p[1:]
		}
	}
	return len(p) == 0 && len(s) == 0
}

// matchClass matches c against the class body starting right after '['.
// It returns the pattern remaining after the closing ']'. A class without
// a closing bracket extends to the end of the pattern.
func matchClass(p []rune, c rune, nocase bool) ([]rune, bool) {
	negate := len(p) > 0 && p[0] == '^'
	if negate {
		p = p[1:]
	}

	matched := false
	for len(p) > 0 && p[0] != ']' {
		switch {
		case p[0] == '\\' && len(p) >= 2:
			p = p[1:]
			if p[0] == c {
				matched = true
			}
		case len(p) >= 3 && p[1] == '-':
			start, end, cc := p[0], p[2], c
			if start > end {
				start, end = end, start
			}
			if nocase {
				start, end, cc = unicode.ToLower(start), unicode.ToLower(end), unicode.ToLower(cc)
			}
			if cc >= start && cc <= end {
				matched = true
			}
			p = p[2:]
		default:
			if equal(p[0], c, nocase) {
				matched = true
			}
		}
		p = p[1:]
	}
	if len(p) > 0 {
		p = p[1:] // closing ']'
	}

	if negate {
		matched = !matched
	}
	return p, matched
}

func equal(a, b rune, nocase bool) bool {
	if a == b {
		return true
	}
	return nocase && unicode.ToLower(a) == unicode.ToLower(b)
}
