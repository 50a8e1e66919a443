package trigger

import (
	"fmt"
	"strings"
)

// EventPattern is a glob over entity ids where '*' matches any run of bytes.
type EventPattern struct {
	raw   string
	parts []string // literal runs between stars
}

// ParseEventPattern compiles a glob. Only the empty string is rejected.
func ParseEventPattern(s string) (EventPattern, error) {
	if s == "" {
		return EventPattern{}, fmt.Errorf("%w: empty event pattern", ErrInvalidPattern)
	}
	return EventPattern{raw: s, parts: strings.Split(s, "*")}, nil
}

// Match reports whether id matches the glob. Case-sensitive.
func (p EventPattern) Match(id string) bool {
	if len(p.parts) == 0 {
		return false
	}
	if len(p.parts) == 1 {
		return id == p.parts[0]
	}

	first, last := p.parts[0], p.parts[len(p.parts)-1]
	if !strings.HasPrefix(id, first) {
		return false
	}
	rest := id[len(first):]
	if len(rest) < len(last) {
		return false
	}
	tail := len(rest) - len(last)
	if rest[tail:] != last {
		return false
	}
	rest = rest[:tail]

	// Leftmost placement of each middle literal leaves the most room for the rest.
	for _, mid := range p.parts[1 : len(p.parts)-1] {
		idx := strings.Index(rest, mid)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(mid):]
	}
	return true
}

// MatchAll reports whether the pattern matches every id.
func (p EventPattern) MatchAll() bool {
	for _, part := range p.parts {
		if part != "" {
			return false
		}
	}
	return len(p.parts) > 1
}

func (p EventPattern) String() string {
	return p.raw
}
