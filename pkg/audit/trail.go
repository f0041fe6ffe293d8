// Package audit provides the bounded in-memory audit trail for control-plane
// operations. The trail is deliberately not persisted: it records the recent
// operational history of one process and is capped with FIFO eviction.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
	"github.com/openswitchboard/switchboard/pkg/telemetry"
)

// DefaultMaxEntries caps the trail when no explicit limit is configured.
const DefaultMaxEntries = 1000

// Trail is a mutex-guarded, bounded audit log. It implements
// controlplane.AuditLog. All read methods return copies; callers can hold
// and mutate results freely.
type Trail struct {
	mu         sync.Mutex
	entries    []controlplane.AuditEntry
	maxEntries int
	evicted    uint64
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
}

// NewTrail creates a trail retaining at most maxEntries entries.
// maxEntries <= 0 selects DefaultMaxEntries.
func NewTrail(maxEntries int, logger zerolog.Logger) *Trail {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Trail{
		entries:    make([]controlplane.AuditEntry, 0, maxEntries),
		maxEntries: maxEntries,
		logger:     logger.With().Str("component", "audit").Logger(),
	}
}

// WithMetrics attaches a metrics recorder. Returns the trail for chaining.
func (t *Trail) WithMetrics(m *telemetry.Metrics) *Trail {
	t.metrics = m
	return t
}

// Log records an entry and returns its operation ID. A zero timestamp is
// filled with the current time; an empty operation ID gets a fresh UUID.
// When the trail is full the oldest entry is evicted.
func (t *Trail) Log(entry controlplane.AuditEntry) string {
	if entry.OperationID == "" {
		entry.OperationID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	evicted := 0
	for len(t.entries) > t.maxEntries {
		t.entries = t.entries[1:]
		t.evicted++
		evicted++
	}
	t.mu.Unlock()

	if evicted > 0 {
		t.metrics.RecordAuditEvictions(evicted)
	}

	t.logger.Debug().
		Str("operation_id", entry.OperationID).
		Str("operation_type", string(entry.OperationType)).
		Str("result", string(entry.Result)).
		Str("reason_code", string(entry.ReasonCode)).
		Msg("Audit entry recorded")

	return entry.OperationID
}

// Entries returns entries matching the filter, newest first. A limit > 0
// caps the result; limit <= 0 returns every match.
func (t *Trail) Entries(filter controlplane.AuditFilter, limit int) []controlplane.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []controlplane.AuditEntry
	for i := len(t.entries) - 1; i >= 0; i-- {
		if !matches(filter, &t.entries[i]) {
			continue
		}
		out = append(out, copyEntry(&t.entries[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Query returns all entries matching the filter, newest first.
func (t *Trail) Query(filter controlplane.AuditFilter) []controlplane.AuditEntry {
	return t.Entries(filter, 0)
}

// RecentFailures returns the most recent failure entries, newest first.
func (t *Trail) RecentFailures(limit int) []controlplane.AuditEntry {
	return t.Entries(controlplane.AuditFilter{Result: controlplane.AuditResultFailure}, limit)
}

// Operation returns the entry with the given operation ID, or nil when it
// is unknown or already evicted. The scan runs newest first.
func (t *Trail) Operation(operationID string) *controlplane.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].OperationID == operationID {
			e := copyEntry(&t.entries[i])
			return &e
		}
	}
	return nil
}

// ClearOlderThan removes entries older than the given number of days and
// returns how many were dropped.
func (t *Trail) ClearOlderThan(days int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	removed := 0
	for i := range t.entries {
		if t.entries[i].Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t.entries[i])
	}
	t.entries = kept

	if removed > 0 {
		t.logger.Info().Int("removed", removed).Int("days", days).Msg("Cleared old audit entries")
	}
	return removed
}

// Len returns the number of retained entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Evicted returns how many entries have been dropped by the FIFO cap since
// the trail was created.
func (t *Trail) Evicted() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

func matches(f controlplane.AuditFilter, e *controlplane.AuditEntry) bool {
	if f.OperationType != "" && e.OperationType != f.OperationType {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.TriggeredBy != "" && e.TriggeredBy != f.TriggeredBy {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	return true
}

func copyEntry(e *controlplane.AuditEntry) controlplane.AuditEntry {
	c := *e
	if e.Params != nil {
		c.Params = make(map[string]interface{}, len(e.Params))
		for k, v := range e.Params {
			c.Params[k] = v
		}
	}
	return c
}
