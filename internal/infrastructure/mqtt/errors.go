package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down. Callers may retry after
	// the next OnConnect callback.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the initial connect failure.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps encode, size and broker failures on publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker refusals and missing handlers.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic covers empty topics, misplaced wildcards and
	// publishing to a wildcard.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
