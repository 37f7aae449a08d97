package constant

const (
	// ReportStatusPending is the initial status of every queued report.
	ReportStatusPending = "pending"

	// ReportStatusFailed marks a report whose last submission attempt failed.
	// A failed report stays in the queue; whether it is picked up again
	// automatically depends on its retryable flag.
	ReportStatusFailed = "failed"

	// ReportStatusSuccess is terminal. Success rows are purged immediately
	// after a pass and must never accumulate.
	ReportStatusSuccess = "success"

	SeverityMin = 1
	SeverityMax = 5
)
