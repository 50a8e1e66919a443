package condition

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/trackside-core/internal/layout"
)

// Day runs from 06:00 up to but not including 20:00.
const (
	dayStartHour = 6
	dayEndHour   = 20
)

type helperFunc func(env *helperEnv, name string, args []any) (any, error)

type helper struct {
	minArgs int
	maxArgs int
	fn      helperFunc
}

func (h helper) arity() string {
	if h.minArgs == h.maxArgs {
		if h.minArgs == 1 {
			return "1 argument"
		}
		return strconv.Itoa(h.minArgs) + " arguments"
	}
	return strconv.Itoa(h.minArgs) + "-" + strconv.Itoa(h.maxArgs) + " arguments"
}

// helperEnv is the read-only view helpers work against.
type helperEnv struct {
	state layout.Reader
	clock layout.Clock
}

func newHelperEnv(ctx Context) *helperEnv {
	state := ctx.State
	if state == nil {
		state = emptyReader{}
	}
	return &helperEnv{state: state, clock: ctx.Clock}
}

type emptyReader struct{}

func (emptyReader) Get(layout.Kind, string) (layout.Entity, bool) { return layout.Entity{}, false }
func (emptyReader) List(layout.Kind) []layout.Entity              { return nil }
func (emptyReader) Count(layout.Kind) int                         { return 0 }
func (emptyReader) Clock() layout.Clock                           { return layout.Clock{} }

// ─── Argument helpers ───────────────────────────────────────────────

func stringArg(name string, args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", evalError(ErrType, "%s() argument %d must be a string, got %s", name, i+1, typeName(args[i]))
	}
	return s, nil
}

func numberArg(name string, args []any, i int) (float64, error) {
	n, ok := args[i].(float64)
	if !ok {
		return 0, evalError(ErrType, "%s() argument %d must be a number, got %s", name, i+1, typeName(args[i]))
	}
	return n, nil
}

func listArg(name string, args []any, i int) ([]any, error) {
	l, ok := args[i].([]any)
	if !ok {
		return nil, evalError(ErrType, "%s() argument %d must be a list, got %s", name, i+1, typeName(args[i]))
	}
	return l, nil
}

func kindArg(name string, args []any, i int) (layout.Kind, error) {
	s, err := stringArg(name, args, i)
	if err != nil {
		return "", err
	}
	kind, err := layout.ParseKind(s)
	if err != nil {
		return "", evalError(ErrType, "%s() argument %d: unknown kind %q", name, i+1, s)
	}
	return kind, nil
}

// ─── Entity readers ─────────────────────────────────────────────────

func speed(e layout.Entity) float64 {
	v, _ := e.Number(layout.AttrSpeed)
	return v
}

func forward(e layout.Entity) bool {
	if _, ok := e.Attr(layout.AttrDirection); !ok {
		return true
	}
	return e.Bool(layout.AttrDirection)
}

func lowerText(e layout.Entity, attr string) string {
	return strings.ToLower(strings.TrimSpace(e.Text(attr)))
}

var aspectColours = []string{"red", "green", "yellow", "white"}

// signalColour reads the aspect, which the controller reports either as a
// colour name or as an index into red/green/yellow/white, falling back to state.
func signalColour(e layout.Entity) string {
	if v, ok := e.Attr(layout.AttrAspect); ok {
		if s, isString := v.(string); isString {
			if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
				return strings.ToLower(strings.TrimSpace(s))
			}
		}
		if n, isNumber := layout.ToNumber(v); isNumber {
			idx := int(n)
			if idx >= 0 && idx < len(aspectColours) && float64(idx) == n {
				return aspectColours[idx]
			}
			return ""
		}
	}
	return lowerText(e, layout.AttrState)
}

func routeLocked(e layout.Entity) bool {
	status := lowerText(e, layout.AttrStatus)
	if status == "" {
		status = lowerText(e, layout.AttrState)
	}
	return status == "locked"
}

// locationBlocks returns the block ids a location groups. The controller
// reports them as a comma-separated string; a list is accepted too.
func locationBlocks(e layout.Entity) []string {
	v, ok := e.Attr("blocks")
	if !ok {
		return nil
	}
	var out []string
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ─── Builders ───────────────────────────────────────────────────────

// predicate builds a one-argument helper over an entity of kind.
// A missing entity yields false.
func predicate(kind layout.Kind, test func(layout.Entity) bool) helper {
	return helper{minArgs: 1, maxArgs: 1, fn: func(env *helperEnv, name string, args []any) (any, error) {
		id, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		e, ok := env.state.Get(kind, id)
		if !ok {
			return false, nil
		}
		return test(e), nil
	}}
}

// counter builds a zero-argument helper counting entities of kind that pass test.
func counter(kind layout.Kind, test func(layout.Entity) bool) helper {
	return helper{fn: func(env *helperEnv, _ string, _ []any) (any, error) {
		return float64(countWhere(env, kind, test)), nil
	}}
}

func countWhere(env *helperEnv, kind layout.Kind, test func(layout.Entity) bool) int {
	n := 0
	for _, e := range env.state.List(kind) {
		if test(e) {
			n++
		}
	}
	return n
}

// speedCompare builds speed_above / speed_below.
func speedCompare(cmp func(v, limit float64) bool) helper {
	return helper{minArgs: 2, maxArgs: 2, fn: func(env *helperEnv, name string, args []any) (any, error) {
		id, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		limit, err := numberArg(name, args, 1)
		if err != nil {
			return nil, err
		}
		e, ok := env.state.Get(layout.KindLocomotive, id)
		if !ok {
			return false, nil
		}
		return cmp(speed(e), limit), nil
	}}
}

func combinator(test func(trues, total int) bool) helper {
	return helper{minArgs: 1, maxArgs: 1, fn: func(_ *helperEnv, name string, args []any) (any, error) {
		items, err := listArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		trues := 0
		for _, item := range items {
			if truthy(item) {
				trues++
			}
		}
		return test(trues, len(items)), nil
	}}
}

func isMoving(e layout.Entity) bool { return speed(e) > 0 }

func isDaytime(c layout.Clock) bool {
	return c.Hour >= dayStartHour && c.Hour < dayEndHour
}

// standardHelpers returns the helper library keyed by name.
func standardHelpers() map[string]helper {
	h := map[string]helper{
		// feedback
		"is_active": predicate(layout.KindFeedback, func(e layout.Entity) bool {
			return e.Bool(layout.AttrState)
		}),
		"is_inactive": predicate(layout.KindFeedback, func(e layout.Entity) bool {
			return !e.Bool(layout.AttrState)
		}),

		// block
		"is_occupied": predicate(layout.KindBlock, func(e layout.Entity) bool {
			return e.Bool(layout.AttrOccupied)
		}),
		"is_free": predicate(layout.KindBlock, func(e layout.Entity) bool {
			return !e.Bool(layout.AttrOccupied) && !e.Bool(layout.AttrReserved)
		}),
		"is_reserved": predicate(layout.KindBlock, func(e layout.Entity) bool {
			return e.Bool(layout.AttrReserved)
		}),
		"block_has_loco": predicate(layout.KindBlock, func(e layout.Entity) bool {
			return e.Text(layout.AttrLocoID) != ""
		}),

		// locomotive
		"is_moving": predicate(layout.KindLocomotive, isMoving),
		"is_stopped": predicate(layout.KindLocomotive, func(e layout.Entity) bool {
			return !isMoving(e)
		}),
		"is_forward": predicate(layout.KindLocomotive, forward),
		"is_reverse": predicate(layout.KindLocomotive, func(e layout.Entity) bool {
			return !forward(e)
		}),
		"speed_above": speedCompare(func(v, limit float64) bool { return v > limit }),
		"speed_below": speedCompare(func(v, limit float64) bool { return v < limit }),
		"speed_between": {minArgs: 3, maxArgs: 3, fn: func(env *helperEnv, name string, args []any) (any, error) {
			id, err := stringArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			lo, err := numberArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			hi, err := numberArg(name, args, 2)
			if err != nil {
				return nil, err
			}
			e, ok := env.state.Get(layout.KindLocomotive, id)
			if !ok {
				return false, nil
			}
			v := speed(e)
			return v >= lo && v <= hi, nil
		}},
		"loco_in_block": {minArgs: 2, maxArgs: 2, fn: func(env *helperEnv, name string, args []any) (any, error) {
			lc, err := stringArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			bk, err := stringArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			e, ok := env.state.Get(layout.KindLocomotive, lc)
			if !ok {
				return false, nil
			}
			return e.Text(layout.AttrBlockID) == bk, nil
		}},

		// route
		"is_locked": predicate(layout.KindRoute, routeLocked),
		"is_unlocked": predicate(layout.KindRoute, func(e layout.Entity) bool {
			return !routeLocked(e)
		}),

		// output
		"is_on": predicate(layout.KindOutput, func(e layout.Entity) bool {
			return e.Bool(layout.AttrState)
		}),
		"is_off": predicate(layout.KindOutput, func(e layout.Entity) bool {
			return !e.Bool(layout.AttrState)
		}),

		// aggregates
		"count_occupied": counter(layout.KindBlock, func(e layout.Entity) bool {
			return e.Bool(layout.AttrOccupied)
		}),
		"count_active": counter(layout.KindFeedback, func(e layout.Entity) bool {
			return e.Bool(layout.AttrState)
		}),
		"count_moving": counter(layout.KindLocomotive, isMoving),
		"any_moving": {fn: func(env *helperEnv, _ string, _ []any) (any, error) {
			return countWhere(env, layout.KindLocomotive, isMoving) > 0, nil
		}},
		"all_stopped": {fn: func(env *helperEnv, _ string, _ []any) (any, error) {
			return countWhere(env, layout.KindLocomotive, isMoving) == 0, nil
		}},
		"count": {minArgs: 1, maxArgs: 1, fn: func(env *helperEnv, name string, args []any) (any, error) {
			kind, err := kindArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			return float64(env.state.Count(kind)), nil
		}},
		"exists": {minArgs: 2, maxArgs: 2, fn: func(env *helperEnv, name string, args []any) (any, error) {
			kind, err := kindArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			id, err := stringArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			_, ok := env.state.Get(kind, id)
			return ok, nil
		}},
		"attr": {minArgs: 3, maxArgs: 3, fn: func(env *helperEnv, name string, args []any) (any, error) {
			kind, err := kindArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			id, err := stringArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			attrName, err := stringArg(name, args, 2)
			if err != nil {
				return nil, err
			}
			e, ok := env.state.Get(kind, id)
			if !ok {
				return nil, nil
			}
			v, _ := e.Attr(attrName)
			return normalize(v), nil
		}},
		"at_location": {minArgs: 2, maxArgs: 2, fn: func(env *helperEnv, name string, args []any) (any, error) {
			id, err := stringArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			locID, err := stringArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			loc, ok := env.state.Get(layout.KindLocation, locID)
			if !ok {
				return false, nil
			}
			// A locomotive is at a location when its current block belongs to it.
			block := id
			if lc, isLoco := env.state.Get(layout.KindLocomotive, id); isLoco {
				block = lc.Text(layout.AttrBlockID)
			}
			for _, member := range locationBlocks(loc) {
				if member == block {
					return true, nil
				}
			}
			return false, nil
		}},

		// combinators
		"any_of":  combinator(func(trues, _ int) bool { return trues > 0 }),
		"all_of":  combinator(func(trues, total int) bool { return total > 0 && trues == total }),
		"none_of": combinator(func(trues, _ int) bool { return trues == 0 }),

		// time
		"time_between": {minArgs: 2, maxArgs: 2, fn: func(env *helperEnv, name string, args []any) (any, error) {
			start, err := numberArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			end, err := numberArg(name, args, 1)
			if err != nil {
				return nil, err
			}
			h := float64(env.clock.Hour)
			if start <= end {
				return h >= start && h <= end, nil
			}
			return h >= start || h <= end, nil
		}},
		"is_daytime": {fn: func(env *helperEnv, _ string, _ []any) (any, error) {
			return isDaytime(env.clock), nil
		}},
		"is_nighttime": {fn: func(env *helperEnv, _ string, _ []any) (any, error) {
			return !isDaytime(env.clock), nil
		}},
	}

	for _, entry := range []struct{ name, position string }{
		{"is_straight", "straight"},
		{"is_turnout", "turnout"},
		{"is_left", "left"},
		{"is_right", "right"},
	} {
		position := entry.position
		h[entry.name] = predicate(layout.KindSwitch, func(e layout.Entity) bool {
			return lowerText(e, layout.AttrState) == position
		})
	}

	for _, colour := range aspectColours {
		h["is_"+colour] = predicate(layout.KindSignal, func(e layout.Entity) bool {
			return signalColour(e) == colour
		})
	}

	return h
}

// HelperNames lists the helper library, for documentation and diagnostics.
func HelperNames() []string {
	h := standardHelpers()
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
