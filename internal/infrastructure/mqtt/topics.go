package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "trackside"

// Topics builds Trackside MQTT topics under a configurable prefix.
//
//	topics := mqtt.NewTopics("trackside")
//	topics.EntityState("lc", "BR01")  // trackside/state/lc/BR01
//	topics.Command("sw", "sw12")      // trackside/command/sw/sw12
type Topics struct {
	prefix string
}

// NewTopics returns a builder for the given prefix. Trailing slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root every topic is built under.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// =============================================================================
// Feed topics (bridge → core)
// =============================================================================

// Clock carries the layout fast-clock.
//
// Example: trackside/clock
func (t Topics) Clock() string {
	return t.Prefix() + "/clock"
}

// EntityState carries the attribute map of one entity.
//
// Example: trackside/state/fb/fb_station_1
func (t Topics) EntityState(kind, id string) string {
	return t.Prefix() + "/state/" + kind + "/" + id
}

// AllEntityStates matches every entity state topic.
//
// Pattern: trackside/state/+/+
func (t Topics) AllEntityStates() string {
	return t.Prefix() + "/state/+/+"
}

// BridgeStatus carries the feed bridge's lifecycle notices.
//
// Example: trackside/bridge/status
func (t Topics) BridgeStatus() string {
	return t.Prefix() + "/bridge/status"
}

// ParseEntityState extracts kind and id from an entity state topic.
// The id may itself contain no further slashes.
func (t Topics) ParseEntityState(topic string) (kind, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/state/")
	if !found {
		return "", "", false
	}
	kind, id, found = strings.Cut(rest, "/")
	if !found || kind == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return kind, id, true
}

// =============================================================================
// Core topics (core → bridge)
// =============================================================================

// Command carries an outbound command for one entity.
//
// Example: trackside/command/lc/BR01
func (t Topics) Command(kind, id string) string {
	return t.Prefix() + "/command/" + kind + "/" + id
}

// Emergency carries the recovery notice published after an unexpected disconnect.
//
// Example: trackside/core/emergency
func (t Topics) Emergency() string {
	return t.Prefix() + "/core/emergency"
}

// CoreStatus carries Trackside's own online/offline status and LWT.
//
// Example: trackside/core/status
func (t Topics) CoreStatus() string {
	return t.Prefix() + "/core/status"
}
