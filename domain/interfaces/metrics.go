package interfaces

import "time"

// TrackerMetrics receives operational measurements from the tracker, the
// durability writer and the payroll path
type TrackerMetrics interface {
	RecordMembershipEvent(kind string)
	RecordFlush(openIntervals int, took time.Duration)
	RecordDurabilityFailure(writeKind string)
	RecordPayrollCalculation(recipients, donors int)
	UpdateActiveOperations(delta int64)
}

// NoopTrackerMetrics discards every measurement
type NoopTrackerMetrics struct{}

func (NoopTrackerMetrics) RecordMembershipEvent(string) {}
func (NoopTrackerMetrics) RecordFlush(int, time.Duration) {}
func (NoopTrackerMetrics) RecordDurabilityFailure(string) {}
func (NoopTrackerMetrics) RecordPayrollCalculation(int, int) {}
func (NoopTrackerMetrics) UpdateActiveOperations(int64) {}
