package feed

import "errors"

var (
	// ErrBadPayload is returned when a feed message cannot be decoded.
	ErrBadPayload = errors.New("feed: bad payload")

	// ErrBadTopic is returned for a state topic without a kind and id.
	ErrBadTopic = errors.New("feed: bad topic")
)
