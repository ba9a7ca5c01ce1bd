package enums

// OutboxDLQErrorReason records why an outbox row was parked.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnresolvable marks rows whose type or envelope the
	// publisher could not decode.
	OutboxDLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var dlqReasons = closed[OutboxDLQErrorReason]{"outbox dlq reason", []OutboxDLQErrorReason{
	OutboxDLQReasonUnresolvable,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMaxAttempts,
}}

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return dlqReasons.parse(value)
}
