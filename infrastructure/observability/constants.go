package observability

// Metric name prefixes
const (
	MetricPrefix = "minebot"
)

// Metric names
const (
	// Tracker metrics
	MembershipEventsTotal = MetricPrefix + ".tracker.membership_events_total"
	FlushesTotal          = MetricPrefix + ".tracker.flushes_total"
	FlushOpenIntervals    = MetricPrefix + ".tracker.flush_open_intervals"
	FlushDuration         = MetricPrefix + ".tracker.flush_duration"

	// Durability metrics
	DurabilityFailuresTotal = MetricPrefix + ".durability.failures_total"

	// Operation metrics
	OperationsActive = MetricPrefix + ".operations.active"

	// Payroll metrics
	PayrollCalculationsTotal = MetricPrefix + ".payroll.calculations_total"
	PayrollRecipients        = MetricPrefix + ".payroll.recipients"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelKind      = "kind"
	LabelEventType = "event_type"
	LabelHasDonors = "has_donors"
)
