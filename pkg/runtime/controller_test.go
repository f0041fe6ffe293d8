package runtime

import (
	"context"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

func TestNewStaticController_Defaults(t *testing.T) {
	c := NewStaticController(nil, zerolog.Nop())

	status, err := c.ServicesStatus(context.Background())
	if err != nil {
		t.Fatalf("ServicesStatus returned error: %v", err)
	}
	if len(status) != 1 {
		t.Fatalf("Expected 1 service, got %d", len(status))
	}
	h, ok := status["backend"]
	if !ok {
		t.Fatal("Expected backend in the default roster")
	}
	if h.Status != StatusRunning {
		t.Errorf("Expected status running, got %s", h.Status)
	}
}

func TestNewStaticController_Roster(t *testing.T) {
	c := NewStaticController([]string{"backend", "embedder", "backend", ""}, zerolog.Nop())

	names := c.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "backend" || names[1] != "embedder" {
		t.Errorf("Expected [backend embedder], got %v", names)
	}
}

func TestStaticController_SetStatus(t *testing.T) {
	c := NewStaticController([]string{"backend"}, zerolog.Nop())

	if err := c.SetStatus("backend", StatusDegraded, "high latency"); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}

	status, err := c.ServicesStatus(context.Background())
	if err != nil {
		t.Fatalf("ServicesStatus returned error: %v", err)
	}
	if status["backend"].Status != StatusDegraded {
		t.Errorf("Expected status degraded, got %s", status["backend"].Status)
	}
	if status["backend"].Message != "high latency" {
		t.Errorf("Expected message to carry detail, got %q", status["backend"].Message)
	}
}

func TestStaticController_SetStatusUnknownService(t *testing.T) {
	c := NewStaticController([]string{"backend"}, zerolog.Nop())

	if err := c.SetStatus("frontend", StatusStopped, ""); err == nil {
		t.Error("Expected error for a service outside the roster")
	}
}

func TestStaticController_StatusCopyIsolated(t *testing.T) {
	c := NewStaticController([]string{"backend"}, zerolog.Nop())

	status, _ := c.ServicesStatus(context.Background())
	status["backend"] = controlplane.ServiceHealth{Status: StatusStopped}

	again, _ := c.ServicesStatus(context.Background())
	if again["backend"].Status != StatusRunning {
		t.Errorf("Expected caller mutation to be isolated, got %s", again["backend"].Status)
	}
}
