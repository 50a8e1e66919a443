package trigger

import (
	"fmt"
	"strconv"
	"strings"
)

// SpecKind discriminates the three forms a pattern field can take.
type SpecKind int

const (
	SpecAny SpecKind = iota
	SpecExact
	SpecInterval
)

const (
	maxHour   = 23
	maxMinute = 59
)

// Spec is one field of a TimePattern.
type Spec struct {
	Kind SpecKind
	// Value is the literal for SpecExact and the step for SpecInterval.
	Value int
}

// Any returns a Spec matching every value.
func Any() Spec { return Spec{Kind: SpecAny} }

// Exact returns a Spec matching only n.
func Exact(n int) Spec { return Spec{Kind: SpecExact, Value: n} }

// Every returns a Spec matching values divisible by step.
func Every(step int) Spec { return Spec{Kind: SpecInterval, Value: step} }

// Matches reports whether v satisfies the spec.
func (s Spec) Matches(v int) bool {
	switch s.Kind {
	case SpecAny:
		return true
	case SpecExact:
		return v == s.Value
	case SpecInterval:
		return s.Value > 0 && v%s.Value == 0
	default:
		return false
	}
}

func (s Spec) String() string {
	switch s.Kind {
	case SpecExact:
		return strconv.Itoa(s.Value)
	case SpecInterval:
		return "*/" + strconv.Itoa(s.Value)
	default:
		return "*"
	}
}

// TimePattern fires when both the hour and the minute spec match a tick.
type TimePattern struct {
	Hour   Spec
	Minute Spec
}

// EveryMinute is the pattern an empty or bare "*" string parses to.
var EveryMinute = TimePattern{Hour: Any(), Minute: Any()}

// ParseTimePattern parses "HOURSPEC:MINUTESPEC".
// An empty string or a bare "*" is equivalent to "*:*". Whitespace anywhere is
// rejected.
func ParseTimePattern(s string) (TimePattern, error) {
	if s == "" || s == "*" {
		return EveryMinute, nil
	}

	hourField, minuteField, ok := strings.Cut(s, ":")
	if !ok {
		return TimePattern{}, fmt.Errorf("%w: %q: expected HOUR:MINUTE", ErrInvalidPattern, s)
	}

	hour, err := parseSpec(hourField, maxHour)
	if err != nil {
		return TimePattern{}, fmt.Errorf("%w: %q: hour %v", ErrInvalidPattern, s, err)
	}
	minute, err := parseSpec(minuteField, maxMinute)
	if err != nil {
		return TimePattern{}, fmt.Errorf("%w: %q: minute %v", ErrInvalidPattern, s, err)
	}

	return TimePattern{Hour: hour, Minute: minute}, nil
}

// MustParseTimePattern is ParseTimePattern for patterns known at compile time.
func MustParseTimePattern(s string) TimePattern {
	p, err := ParseTimePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSpec(field string, limit int) (Spec, error) {
	switch {
	case field == "*":
		return Any(), nil
	case strings.HasPrefix(field, "*/"):
		step, err := parseDigits(field[2:])
		if err != nil {
			return Spec{}, err
		}
		if step == 0 {
			return Spec{}, fmt.Errorf("step must be positive")
		}
		return Every(step), nil
	default:
		n, err := parseDigits(field)
		if err != nil {
			return Spec{}, err
		}
		if n > limit {
			return Spec{}, fmt.Errorf("%d out of range 0-%d", n, limit)
		}
		return Exact(n), nil
	}
}

// parseDigits accepts only ASCII digits, so signs and spaces are rejected.
func parseDigits(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

// Matches reports whether the pattern fires at hour:minute.
func (p TimePattern) Matches(hour, minute int) bool {
	return p.Hour.Matches(hour) && p.Minute.Matches(minute)
}

// MatchesTick reports whether the pattern fires for a tick.
func (p TimePattern) MatchesTick(t Tick) bool {
	return p.Matches(t.Hour, t.Minute)
}

// String returns the canonical form; it parses back to an equal pattern.
func (p TimePattern) String() string {
	return p.Hour.String() + ":" + p.Minute.String()
}
