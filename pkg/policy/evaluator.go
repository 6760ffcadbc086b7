package policy

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// missingValue is the type of Missing.
type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// Missing is returned by Resolve when a path does not exist.
var Missing interface{} = missingValue{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v interface{}) bool {
	_, ok := v.(missingValue)
	return ok
}

const propertiesPrefix = "properties."

// Resolve walks a dot-separated path into properties. A leading
// "properties." segment is accepted and ignored.
func Resolve(properties map[string]interface{}, path string) interface{} {
	path = strings.TrimPrefix(path, propertiesPrefix)
	if path == "" || properties == nil {
		return Missing
	}

	var current interface{} = properties
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[key]
			if !ok {
				return Missing
			}
			current = next
		case map[string]string:
			next, ok := node[key]
			if !ok {
				return Missing
			}
			current = next
		case map[interface{}]interface{}:
			next, ok := node[key]
			if !ok {
				return Missing
			}
			current = next
		default:
			return Missing
		}
	}
	return current
}

// Evaluator applies rule operators. The zero value is usable and logs nothing.
type Evaluator struct {
	logger zerolog.Logger
	// OnUnsafePattern is called when a matches rule is rejected by the guard.
	OnUnsafePattern func(pattern string)
}

// NewEvaluator creates an evaluator that logs rejected patterns.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With().Str("component", "rule-evaluator").Logger(),
	}
}

// Evaluate reports whether value satisfies operator against expected.
// It never panics; an unusable comparison is false.
func (e *Evaluator) Evaluate(value interface{}, operator Operator, expected interface{}) bool {
	switch operator {
	case OperatorEquals:
		return valuesEqual(value, expected)
	case OperatorNotEquals:
		return !valuesEqual(value, expected)
	case OperatorContains:
		s, sub, ok := stringPair(value, expected)
		return ok && strings.Contains(s, sub)
	case OperatorNotContains:
		s, sub, ok := stringPair(value, expected)
		return ok && !strings.Contains(s, sub)
	case OperatorMatches:
		s, pattern, ok := stringPair(value, expected)
		if !ok {
			return false
		}
		return e.Match(pattern, s)
	case OperatorGreaterThan:
		return toNumber(value) > toNumber(expected)
	case OperatorLessThan:
		return toNumber(value) < toNumber(expected)
	default:
		return false
	}
}

// Match compiles pattern through the safety guard and matches it against s.
// Unsafe or invalid patterns never match.
func (e *Evaluator) Match(pattern, s string) bool {
	re, err := CompilePattern(pattern)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Pattern rejected, treating as no match")
		if e.OnUnsafePattern != nil && errors.Is(err, ErrUnsafePattern) {
			e.OnUnsafePattern(pattern)
		}
		return false
	}
	return re.MatchString(s)
}

func stringPair(value, expected interface{}) (string, string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", "", false
	}
	sub, ok := expected.(string)
	if !ok {
		return "", "", false
	}
	return s, sub, true
}

// valuesEqual compares with numeric normalization so that a JSON float64
// equals the same integer written in Go or YAML.
func valuesEqual(a, b interface{}) bool {
	if IsMissing(a) || IsMissing(b) {
		return false
	}
	if fa, ok := numeric(a); ok {
		if fb, ok := numeric(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// numeric converts Go numeric kinds only; strings and bools are not numbers here.
func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// toNumber is the loose numeric cast used by ordering operators.
func toNumber(v interface{}) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
