// Package runtime reports the health of the services the control plane
// manages. The static controller tracks a fixed roster configured at
// startup; it never starts or stops processes itself.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

// Service status values reported by the static controller.
const (
	StatusRunning  = "running"
	StatusStopped  = "stopped"
	StatusDegraded = "degraded"
)

// StaticController implements the RuntimeController interface over a fixed
// roster of services. Every service starts as running; operators and the
// serving layer can override individual statuses.
type StaticController struct {
	// mu protects the health map.
	mu sync.RWMutex

	// health maps service name to its current reported health.
	health map[string]controlplane.ServiceHealth

	logger zerolog.Logger
}

// NewStaticController creates a controller for the given services. An empty
// list falls back to the backend service. Duplicate names collapse.
func NewStaticController(services []string, logger zerolog.Logger) *StaticController {
	if len(services) == 0 {
		services = []string{"backend"}
	}
	health := make(map[string]controlplane.ServiceHealth, len(services))
	for _, name := range services {
		if name == "" {
			continue
		}
		health[name] = controlplane.ServiceHealth{Status: StatusRunning}
	}
	return &StaticController{
		health: health,
		logger: logger.With().Str("component", "runtime").Logger(),
	}
}

// ServicesStatus reports the health of every managed service. The returned
// map is a copy.
func (c *StaticController) ServicesStatus(ctx context.Context) (map[string]controlplane.ServiceHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]controlplane.ServiceHealth, len(c.health))
	for name, h := range c.health {
		out[name] = h
	}
	return out, nil
}

// SetStatus overrides the reported health of one service. The service must
// be part of the configured roster.
func (c *StaticController) SetStatus(name, status, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.health[name]; !ok {
		return fmt.Errorf("unknown service %q", name)
	}
	c.health[name] = controlplane.ServiceHealth{Status: status, Message: message}
	c.logger.Debug().
		Str("service", name).
		Str("status", status).
		Msg("Service status updated")
	return nil
}

// Names returns the configured service names in no particular order.
func (c *StaticController) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.health))
	for name := range c.health {
		names = append(names, name)
	}
	return names
}
