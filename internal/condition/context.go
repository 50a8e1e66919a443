package condition

import "github.com/nerrad567/trackside-core/internal/layout"

// Context is what a guard can see.
type Context struct {
	// Clock supplies hour, minute and time.
	Clock layout.Clock

	// State is read by helpers. A nil State behaves as an empty layout.
	State layout.Reader

	// Event is set for event triggers only.
	Event *Event
}

// Event identifies the entity change that matched an event trigger.
type Event struct {
	Kind   layout.Kind
	ID     string
	Entity layout.Entity
}

// TimeContext builds the context for a time trigger.
func TimeContext(clock layout.Clock, state layout.Reader) Context {
	return Context{Clock: clock, State: state}
}

// EventContext builds the context for an event trigger.
func EventContext(clock layout.Clock, state layout.Reader, entity layout.Entity) Context {
	return Context{
		Clock: clock,
		State: state,
		Event: &Event{Kind: entity.Kind, ID: entity.ID, Entity: entity},
	}
}

// lookup resolves a variable name. The obj_* names are accepted as aliases.
func (c Context) lookup(name string) (any, bool) {
	switch name {
	case "hour":
		return float64(c.Clock.Hour), true
	case "minute":
		return float64(c.Clock.Minute), true
	case "time":
		return c.Clock.Fraction(), true
	}
	if c.Event == nil {
		return nil, false
	}
	switch name {
	case "entity_kind", "obj_type":
		return string(c.Event.Kind), true
	case "entity_id", "obj_id":
		return c.Event.ID, true
	case "entity", "obj":
		attrs := map[string]any(c.Event.Entity.Attributes)
		if attrs == nil {
			attrs = map[string]any{}
		}
		return attrs, true
	}
	return nil, false
}
