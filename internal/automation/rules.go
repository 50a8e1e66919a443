package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/trackside-core/internal/infrastructure/config"
	"github.com/nerrad567/trackside-core/internal/layout"
)

// CommandPublisher sends an encoded command to the layout bridge.
type CommandPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// TopicFunc builds the command topic for an entity.
type TopicFunc func(kind, id string) string

// Command is the payload a declarative rule publishes.
type Command struct {
	ID         string         `json:"id"`
	Kind       layout.Kind    `json:"kind"`
	EntityID   string         `json:"entity_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RuleSpec turns a configured rule into a Spec whose script publishes the
// rule's command. Callbacks are left for the caller.
func RuleSpec(rule config.RuleConfig, pub CommandPublisher, topic TopicFunc) (Spec, error) {
	if pub == nil || topic == nil {
		return Spec{}, fmt.Errorf("%w: rule %q has no publisher", ErrConfig, rule.Name)
	}
	trig, err := ParseTriggerType(rule.Trigger)
	if err != nil {
		return Spec{}, fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	kind, err := layout.ParseKind(rule.Command.Kind)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: rule %q: %w", ErrConfig, rule.Name, err)
	}

	entityID := rule.Command.ID
	verb := rule.Command.Command
	params := rule.Command.Parameters
	source := "automation:" + rule.Name
	target := topic(string(kind), entityID)

	script := func(_ context.Context, _ *layout.Model) (any, error) {
		cmd := Command{
			ID:         GenerateID(),
			Kind:       kind,
			EntityID:   entityID,
			Command:    verb,
			Parameters: params,
			Source:     source,
			Timestamp:  time.Now().UTC(),
		}
		if err := pub.PublishJSON(target, cmd, false); err != nil {
			return nil, fmt.Errorf("publishing %s to %s: %w", verb, target, err)
		}
		return cmd.ID, nil
	}

	return Spec{
		Name:    rule.Name,
		Trigger: trig,
		Pattern: rule.Pattern,
		Guard:   rule.Guard,
		Timeout: rule.Timeout,
		Script:  script,
	}, nil
}

// RegisterRules registers every configured rule. Rules that fail to compile
// are logged and skipped; their errors are joined in the result.
func RegisterRules(e *Engine, rules []config.RuleConfig, pub CommandPublisher, topic TopicFunc) ([]Handle, error) {
	var (
		handles []Handle
		errs    []error
	)
	for _, rule := range rules {
		h, err := e.registerRule(rule, pub, topic)
		if err != nil {
			e.logger.Error("skipping rule", "rule", rule.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		handles = append(handles, h)
	}
	return handles, errors.Join(errs...)
}

func (e *Engine) registerRule(rule config.RuleConfig, pub CommandPublisher, topic TopicFunc) (Handle, error) {
	spec, err := RuleSpec(rule, pub, topic)
	if err != nil {
		return "", err
	}
	name := rule.Name
	spec.OnError = func(err error, elapsed time.Duration) {
		e.logger.Warn("rule failed", "rule", name, "error", err, "elapsed", elapsed)
	}
	return e.Register(spec)
}
