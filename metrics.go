package fiberio

import (
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Diagnostics is a point-in-time snapshot of a Runtime's internal state,
// intended for operator-facing introspection rather than hot-path
// telemetry: dumping a counts summary to logs or a debug endpoint.
type Diagnostics struct {
	// LiveFibers is the number of fibers that have been created and have
	// not yet reached a terminal Outcome.
	LiveFibers int `yaml:"live_fibers"`

	// PendingTimers is the number of timers registered with the timer
	// manager that have not yet fired or been cancelled.
	PendingTimers int `yaml:"pending_timers"`

	// PendingIOEvents is the number of fd/direction pairs currently parked
	// awaiting readiness from the poller.
	PendingIOEvents int `yaml:"pending_io_events"`

	// ReadyQueueDepth is the number of tasks currently sitting on the
	// scheduler's ready queue, awaiting a worker.
	ReadyQueueDepth int `yaml:"ready_queue_depth"`

	// TotalScheduled is the cumulative count of Schedule calls since the
	// Runtime was created.
	TotalScheduled uint64 `yaml:"total_scheduled"`

	// TotalFiberPanics is the cumulative count of fibers that terminated
	// via an unrecovered panic.
	TotalFiberPanics uint64 `yaml:"total_fiber_panics"`

	// RegisteredFDs lists the file descriptors currently holding an fd
	// table entry, sorted ascending.
	RegisteredFDs []int `yaml:"registered_fds"`
}

// Dump marshals the snapshot as YAML, for writing to a log sink or a debug
// endpoint without depending on a JSON-specific viewer.
func (d Diagnostics) Dump() ([]byte, error) {
	return yaml.Marshal(d)
}

// diagnosticsCounters holds the live atomic counters a Runtime updates as
// fibers are created, scheduled, and reach terminal states. snapshot()
// combines these with point-in-time queue/table depths to build a
// Diagnostics value.
type diagnosticsCounters struct {
	totalScheduled   atomic.Uint64
	totalFiberPanics atomic.Uint64
	liveFibers       atomic.Int64
}

func (c *diagnosticsCounters) fiberCreated()    { c.liveFibers.Add(1) }
func (c *diagnosticsCounters) fiberTerminated() { c.liveFibers.Add(-1) }
func (c *diagnosticsCounters) fiberPanicked()   { c.totalFiberPanics.Add(1) }
func (c *diagnosticsCounters) scheduled()       { c.totalScheduled.Add(1) }

func (c *diagnosticsCounters) snapshot(pendingTimers, pendingIOEvents, readyQueueDepth int, registeredFDs []int) Diagnostics {
	return Diagnostics{
		LiveFibers:       int(c.liveFibers.Load()),
		PendingTimers:    pendingTimers,
		PendingIOEvents:  pendingIOEvents,
		ReadyQueueDepth:  readyQueueDepth,
		TotalScheduled:   c.totalScheduled.Load(),
		TotalFiberPanics: c.totalFiberPanics.Load(),
		RegisteredFDs:    registeredFDs,
	}
}
