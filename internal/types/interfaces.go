package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NotificationDispatcher hands a rendered notification to a delivery channel.
// Implementations are external collaborators: the engine decides WHETHER to
// notify, dispatchers own HOW delivery happens (queue handoff, transport
// workers). Send returns an error when no recipient on the channel could be
// accepted; partial provider-side failures are the transport's concern.
type NotificationDispatcher interface {
	Send(ctx context.Context, channel Channel, recipients []string, msg RenderedMessage) (DispatchResult, error)
}
