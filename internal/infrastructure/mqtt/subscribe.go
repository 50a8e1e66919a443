package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers handler for every message matching filter.
//
// The filter may use "+" for one level and a trailing "#" for the rest
// ("trackside/state/+/+"). Subscriptions survive reconnects; a filter that
// the broker refuses is forgotten again.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.trackSubscription(subscription{topic: filter, qos: qos, handler: handler})

	token := c.client.Subscribe(filter, qos, c.wrapHandler(handler))
	if err := awaitToken(token, ErrSubscribeFailed); err != nil {
		c.untrackSubscription(filter)
		return err
	}
	return nil
}

// Unsubscribe drops filter. Messages already delivered to paho may still
// reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if err := validateFilter(filter); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrackSubscription(filter)
	return awaitToken(c.client.Unsubscribe(filter), ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of filters restored on reconnect.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly filter is subscribed.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[filter]
	return ok
}

func (c *Client) trackSubscription(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrackSubscription(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}

// awaitToken waits up to ackTimeout for the broker and wraps any failure
// in sentinel.
func awaitToken(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// validateFilter applies the MQTT filter rules: "+" must fill a whole level
// and "#" may only be the whole last level.
func validateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has \"#\" before the last level", ErrInvalidTopic, filter)
		case level != "#" && strings.Contains(level, "#"):
			return fmt.Errorf("%w: %q mixes \"#\" into a level", ErrInvalidTopic, filter)
		case level != "+" && strings.Contains(level, "+"):
			return fmt.Errorf("%w: %q mixes \"+\" into a level", ErrInvalidTopic, filter)
		}
	}
	return nil
}
