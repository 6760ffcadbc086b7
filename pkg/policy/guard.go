package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxPatternLength is the longest pattern the guard accepts.
const MaxPatternLength = 200

// ErrUnsafePattern is returned when a pattern fails the safety guard.
var ErrUnsafePattern = errors.New("unsafe regular expression")

// dangerousPatterns is a heuristic denylist of backtracking-prone shapes,
// not a complexity proof. Matching itself runs on RE2 and is linear time.
var dangerousPatterns = []*regexp.Regexp{
	// adjacent quantifiers: a**, a++, a{2}{3}, a*+, a+*
	regexp.MustCompile(`[*+][*+]|\}\{|\}[*+]`),
	// group followed by two consecutive greedy quantifiers: (a)*+, (a)+?+
	regexp.MustCompile(`\)[*+?][*+]`),
}

// quantifiedAlternation finds quantified alternation groups; they are only
// unsafe when their branches can overlap.
var quantifiedAlternation = regexp.MustCompile(`\([^()]*\|[^()]*\)[*+{]`)

// IsSafe reports whether pattern passes the length cap and the denylist.
func IsSafe(pattern string) bool {
	if len(pattern) > MaxPatternLength {
		return false
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(pattern) {
			return false
		}
	}
	if nestedQuantifier(pattern) {
		return false
	}
	for _, loc := range quantifiedAlternation.FindAllStringIndex(pattern, -1) {
		if overlappingAlternation(pattern[loc[0]:loc[1]]) {
			return false
		}
	}
	return true
}

// overlappingAlternation narrows the alternation check to groups whose
// branches can overlap: a wildcard or quantifier, an empty branch, or one
// branch that is a prefix of another.
func overlappingAlternation(group string) bool {
	end := strings.LastIndexByte(group, ')')
	body := group[1:end]
	body = strings.TrimPrefix(body, "?:")
	if strings.ContainsAny(body, ".*+") {
		return true
	}
	branches := strings.Split(body, "|")
	for i, a := range branches {
		if a == "" {
			return true
		}
		for _, b := range branches[i+1:] {
			if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
				return true
			}
		}
	}
	return false
}

// nestedQuantifier reports whether a quantified group contains a quantifier
// at any depth: (a+)+, ((a+))+, (a(b+))*. Escapes and character classes are
// skipped.
func nestedQuantifier(pattern string) bool {
	// quantified[i] is set when the group open at depth i+1 holds a quantifier.
	var quantified []bool
	markQuantifier := func() {
		if n := len(quantified); n > 0 {
			quantified[n-1] = true
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '\\':
			i++
		case '[':
			i = classEnd(pattern, i)
		case '(':
			quantified = append(quantified, false)
		case ')':
			n := len(quantified)
			if n == 0 {
				continue
			}
			inner := quantified[n-1]
			quantified = quantified[:n-1]
			if inner && i+1 < len(pattern) && strings.IndexByte("*+?{", pattern[i+1]) >= 0 {
				return true
			}
			if inner {
				markQuantifier()
			}
		case '*', '+', '{':
			markQuantifier()
		case '?':
			// (? opens a group flag and a trailing ? makes a quantifier lazy.
			if i > 0 && strings.IndexByte("(*+?}", pattern[i-1]) < 0 {
				markQuantifier()
			}
		}
	}
	return false
}

// classEnd returns the index of the ] closing the class opened at start.
func classEnd(pattern string, start int) int {
	i := start + 1
	if i < len(pattern) && pattern[i] == '^' {
		i++
	}
	if i < len(pattern) && pattern[i] == ']' {
		i++
	}
	for ; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return len(pattern)
}

// CompilePattern runs the guard and compiles the pattern.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if !IsSafe(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrUnsafePattern, truncate(pattern, 40))
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
