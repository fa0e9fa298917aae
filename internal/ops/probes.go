package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"fieldwatch/internal/scheduler"
	"fieldwatch/internal/types"
)

// HealthProbe is one subsystem check run by the /health endpoint. Probes must
// respect the context deadline; one that blocks past it is reported as timed
// out rather than holding up the response.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// Pinger is the slice of the pgx pool the database probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe reports whether the alert store is reachable.
type DatabaseProbe struct {
	DB Pinger
}

func (p DatabaseProbe) Name() string { return "database" }

func (p DatabaseProbe) Check(ctx context.Context) error {
	if p.DB == nil {
		return fmt.Errorf("database pool not configured")
	}
	return p.DB.Ping(ctx)
}

// BreakerStater reports a circuit breaker's state. Implemented by the
// observation HTTP client.
type BreakerStater interface {
	BreakerState() gobreaker.State
}

// UpstreamProbe reports whether the observation provider circuit is closed.
// Half-open counts as healthy: the client is already retrying traffic.
type UpstreamProbe struct {
	Client BreakerStater
}

func (p UpstreamProbe) Name() string { return "upstream" }

func (p UpstreamProbe) Check(_ context.Context) error {
	if p.Client == nil {
		return fmt.Errorf("observation client not configured")
	}
	if p.Client.BreakerState() == gobreaker.StateOpen {
		return fmt.Errorf("observation circuit breaker is open")
	}
	return nil
}

// SchedulerSource exposes the scheduler state the ops surface reads.
// Implemented by *scheduler.Scheduler.
type SchedulerSource interface {
	Snapshot() scheduler.Snapshot
}

// SchedulerProbe reports whether the evaluation loop is alive. Healthy until
// the first cycle runs, then unhealthy once the last cycle started more than
// MaxAge ago. MaxAge should be a small multiple of the cycle interval.
type SchedulerProbe struct {
	Scheduler SchedulerSource
	MaxAge    time.Duration
	Clock     types.Clock
}

func (p SchedulerProbe) Name() string { return "scheduler" }

func (p SchedulerProbe) Check(_ context.Context) error {
	if p.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	snap := p.Scheduler.Snapshot()
	if snap.LastCycle == nil {
		// Still inside the startup delay before the first cycle.
		return nil
	}
	clock := p.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	if age := clock.Now().Sub(snap.LastCycle.StartedAt); p.MaxAge > 0 && age > p.MaxAge {
		return fmt.Errorf("last evaluation cycle started %s ago", age.Round(time.Second))
	}
	return nil
}
