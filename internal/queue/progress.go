package queue

import (
	"time"

	"github.com/aristath/ledgercore/internal/events"
)

// SyncProgress is the payload published on events.TopicSyncProgress.
type SyncProgress struct {
	Current int
	Total   int
	Message string
	Phase   string
}

// ProgressReporter publishes throttled progress updates during a long-running
// portfolio job step (market sync, broker sync), throttled to 10Hz so a
// noisy provider loop doesn't flood the server-event bus.
type ProgressReporter struct {
	bus         *events.ServerEventBus
	lastReport  time.Time
	minInterval time.Duration
}

// NewProgressReporter builds a reporter throttled to at most 10 updates/sec.
func NewProgressReporter(bus *events.ServerEventBus) *ProgressReporter {
	return &ProgressReporter{bus: bus, minInterval: 100 * time.Millisecond}
}

// Report publishes progress, throttled unless current == total (completion
// always bypasses the throttle).
func (pr *ProgressReporter) Report(current, total int, message string) {
	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		return
	}
	pr.lastReport = now
	pr.bus.Publish(events.ServerEvent{
		Topic:     events.TopicSyncProgress,
		Payload:   SyncProgress{Current: current, Total: total, Message: message},
		EmittedAt: now,
	})
}

// ReportPhase is Report plus a phase label, for multi-step jobs (market sync
// vs broker sync) sharing one reporter.
func (pr *ProgressReporter) ReportPhase(current, total int, message, phase string) {
	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		return
	}
	pr.lastReport = now
	pr.bus.Publish(events.ServerEvent{
		Topic:     events.TopicSyncProgress,
		Payload:   SyncProgress{Current: current, Total: total, Message: message, Phase: phase},
		EmittedAt: now,
	})
}

// ReportUnthrottled always publishes, bypassing the throttle, for milestones
// that must never be dropped.
func (pr *ProgressReporter) ReportUnthrottled(current, total int, message string) {
	pr.lastReport = time.Now()
	pr.bus.Publish(events.ServerEvent{
		Topic:     events.TopicSyncProgress,
		Payload:   SyncProgress{Current: current, Total: total, Message: message},
		EmittedAt: pr.lastReport,
	})
}
