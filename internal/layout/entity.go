package layout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Attributes is the open attribute map carried by an entity.
// Values are whatever the feed decoded: bool, float64, string, nested maps and lists.
type Attributes map[string]any

// Entity is a point-in-time view of one tracked object.
type Entity struct {
	Kind       Kind       `json:"kind"`
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
	Version    uint64     `json:"version"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clock is the layout fast-clock as last reported by the controller.
type Clock struct {
	Hour    int  `json:"hour"`
	Minute  int  `json:"minute"`
	Running bool `json:"running"`
}

// Fraction returns hour + minute/60, the value exposed to guards as "time".
func (c Clock) Fraction() float64 {
	return float64(c.Hour) + float64(c.Minute)/60
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// DeepCopy returns an Entity that shares no mutable state with e.
func (e Entity) DeepCopy() Entity {
	cpy := e
	cpy.Attributes = Attributes(deepCopyMap(e.Attributes))
	return cpy
}

// Attr returns the raw attribute value.
func (e Entity) Attr(name string) (any, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// Bool reads an attribute as a boolean.
// Numbers are true when non-zero; strings accept true/on/yes/1.
// Missing or unrecognised values are false.
func (e Entity) Bool(name string) bool {
	v, ok := e.Attributes[name]
	if !ok {
		return false
	}
	return ToBool(v)
}

// Number reads an attribute as a float64.
func (e Entity) Number(name string) (float64, bool) {
	v, ok := e.Attributes[name]
	if !ok {
		return 0, false
	}
	return ToNumber(v)
}

// Text reads an attribute as a string. Missing attributes are "".
func (e Entity) Text(name string) string {
	v, ok := e.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToBool converts a decoded attribute value to a boolean.
func ToBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on", "yes", "1":
			return true
		}
		return false
	default:
		if n, ok := ToNumber(v); ok {
			return n != 0
		}
		return false
	}
}

// ToNumber converts a decoded attribute value to a float64.
// Numeric strings are accepted since the controller reports most values as text.
func ToNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Attributes:
		return Attributes(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
