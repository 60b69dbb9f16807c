package security

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/semilla-platform/bridge-engine/internal/metrics"
	"github.com/semilla-platform/bridge-engine/pkg/config"
)

// BreakerControl is the slice of the circuit breaker the monitor needs for
// the auto-trip policy.
type BreakerControl interface {
	IsOpen() bool
	Open(ctx context.Context, reason string) error
}

type windowEntry struct {
	at        time.Time
	severity  Severity
	eventType EventType
}

// Stats is the point-in-time aggregate served to the admin dashboard.
type Stats struct {
	Total      int64            `json:"total"`
	Last24h    int              `json:"last_24h"`
	LastHour   int              `json:"last_1h"`
	Critical   int              `json:"critical"`
	BySeverity map[Severity]int `json:"by_severity"`
	TopTypes   []TypeCount      `json:"top_types"`
}

// TypeCount pairs an event type with its occurrence count in the window.
type TypeCount struct {
	Type  EventType `json:"type"`
	Count int       `json:"count"`
}

// Monitor ingests security events, maintains sliding-window counters, and
// trips the circuit breaker when critical events cluster. Windows slide on
// real timestamps; there are no calendar buckets to produce boundary
// artifacts.
type Monitor struct {
	store   Store
	breaker BreakerControl
	cfg     config.SecurityConfig
	logger  *zap.Logger

	mu       sync.Mutex
	window   []windowEntry
	failures map[string][]time.Time

	nowFn func() time.Time
}

// NewMonitor creates a monitor and warms the sliding window from recent
// persisted events, so a restart does not blind the auto-trip policy.
func NewMonitor(
	ctx context.Context,
	store Store,
	breaker BreakerControl,
	cfg config.SecurityConfig,
	logger *zap.Logger,
) (*Monitor, error) {
	m := &Monitor{
		store:    store,
		breaker:  breaker,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string][]time.Time),
		nowFn:    time.Now,
	}

	recent, err := store.ListEventsSince(ctx, m.nowFn().Add(-cfg.EventRetention))
	if err != nil {
		return nil, fmt.Errorf("failed to warm security window: %w", err)
	}
	for _, e := range recent {
		m.window = append(m.window, windowEntry{at: e.CreatedAt, severity: e.Severity, eventType: e.Type})
	}

	return m, nil
}

// Record persists a security event and feeds the sliding window. A CRITICAL
// event re-evaluates the auto-trip policy; all other severities are
// advisory.
func (m *Monitor) Record(ctx context.Context, eventType EventType, severity Severity, details Details) (*Event, error) {
	now := m.nowFn()
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severity,
		Details:   details,
		CreatedAt: now,
	}

	// The window is updated even if persistence fails: the auto-trip
	// defense must not go blind because the event store is struggling.
	m.mu.Lock()
	m.window = append(m.window, windowEntry{at: now, severity: severity, eventType: eventType})
	m.evictLocked(now)
	m.mu.Unlock()

	metrics.SecurityEventsTotal.WithLabelValues(string(severity), string(eventType)).Inc()

	persistErr := m.store.InsertEvent(ctx, event)
	if persistErr != nil {
		m.logger.Error("Failed to persist security event",
			zap.String("event_type", string(eventType)),
			zap.String("severity", string(severity)),
			zap.Error(persistErr))
	}

	m.logger.Info("Security event recorded",
		zap.String("event_type", string(eventType)),
		zap.String("severity", string(severity)))

	if severity == SeverityCritical {
		if reason, trip := m.ShouldTripBreaker(); trip && !m.breaker.IsOpen() {
			if err := m.breaker.Open(ctx, reason); err != nil {
				m.logger.Error("Failed to auto-trip circuit breaker", zap.Error(err))
			}
		}
	}

	return event, persistErr
}

// NoteUnlockFailure tracks failed burn verifications per user. Crossing the
// configured count inside the trip window escalates a HIGH
// REPEATED_FAILED_UNLOCK event.
func (m *Monitor) NoteUnlockFailure(ctx context.Context, userID, chainCode string) {
	now := m.nowFn()
	cutoff := now.Add(-m.cfg.CriticalTripWindow)

	m.mu.Lock()
	recent := m.failures[userID][:0]
	for _, at := range m.failures[userID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	recent = append(recent, now)
	m.failures[userID] = recent
	count := len(recent)
	m.mu.Unlock()

	if count < m.cfg.RepeatedFailureCount {
		return
	}

	_, err := m.Record(ctx, TypeRepeatedFailedUnlock, SeverityHigh, &RepeatedFailedUnlockDetails{
		UserID:    userID,
		ChainCode: chainCode,
		Failures:  count,
		Window:    m.cfg.CriticalTripWindow.String(),
	})
	if err != nil {
		m.logger.Error("Failed to record repeated unlock failure", zap.Error(err))
	}
}

// ShouldTripBreaker reports whether the count of CRITICAL events inside the
// trip window exceeds the configured threshold, and the reason to open with.
func (m *Monitor) ShouldTripBreaker() (string, bool) {
	now := m.nowFn()
	cutoff := now.Add(-m.cfg.CriticalTripWindow)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(now)

	critical := 0
	for _, e := range m.window {
		if e.severity == SeverityCritical && e.at.After(cutoff) {
			critical++
		}
	}

	if critical <= m.cfg.CriticalTripThreshold {
		return "", false
	}
	return fmt.Sprintf("auto: %d critical events in %s", critical, m.cfg.CriticalTripWindow), true
}

// Stats answers a point-in-time aggregate query. Window counts come from
// memory; the all-time total from storage. Config validation keeps
// event_retention at 24h or more, so the window always covers the 24h bucket.
func (m *Monitor) Stats(ctx context.Context) (*Stats, error) {
	total, err := m.store.CountEvents(ctx)
	if err != nil {
		return nil, err
	}

	now := m.nowFn()
	dayCutoff := now.Add(-24 * time.Hour)
	hourCutoff := now.Add(-time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(now)

	stats := &Stats{
		Total:      total,
		BySeverity: make(map[Severity]int),
	}
	typeCounts := make(map[EventType]int)

	for _, e := range m.window {
		if !e.at.After(dayCutoff) {
			continue
		}
		stats.Last24h++
		stats.BySeverity[e.severity]++
		typeCounts[e.eventType]++
		if e.at.After(hourCutoff) {
			stats.LastHour++
		}
		if e.severity == SeverityCritical {
			stats.Critical++
		}
	}

	for eventType, count := range typeCounts {
		stats.TopTypes = append(stats.TopTypes, TypeCount{Type: eventType, Count: count})
	}
	sort.Slice(stats.TopTypes, func(i, j int) bool {
		if stats.TopTypes[i].Count != stats.TopTypes[j].Count {
			return stats.TopTypes[i].Count > stats.TopTypes[j].Count
		}
		return stats.TopTypes[i].Type < stats.TopTypes[j].Type
	})
	if len(stats.TopTypes) > 5 {
		stats.TopTypes = stats.TopTypes[:5]
	}

	return stats, nil
}

// evictLocked drops window entries older than the retention horizon.
// Caller holds m.mu.
func (m *Monitor) evictLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.EventRetention)
	kept := m.window[:0]
	for _, e := range m.window {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.window = kept
}
