package model

import (
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/guregu/null.v3"
)

// PendingReport is a hazard report accepted from the user but not yet
// confirmed delivered to the remote submission endpoint. The row is created
// when a submission cannot be delivered inline, mutated only by the sync
// engine, and deleted on successful delivery or explicit user abandonment.
type PendingReport struct {
	bun.BaseModel `bun:"pending_reports,alias:pr"`

	ReportID    string    `bun:"report_id,pk" json:"id"`
	EventType   string    `bun:"event_type" json:"eventType"`
	Description string    `bun:"description" json:"description"`
	Severity    int       `bun:"severity" json:"severity"`
	Lat         float64   `bun:"lat" json:"lat"`
	Lng         float64   `bun:"lng" json:"lng"`
	CreatedAt   time.Time `bun:"created_at" json:"createdAt"`

	// HasMedia indicates a MediaBlob row exists under the same ReportID.
	HasMedia bool `bun:"has_media" json:"hasMedia"`

	Status string `bun:"status" json:"status"`

	// Retryable is false once a permanent (4xx) rejection has been recorded.
	// Such reports are skipped by automatic passes but stay visible for
	// manual retry or deletion.
	Retryable   bool        `bun:"retryable" json:"retryable"`
	RetryCount  int         `bun:"retry_count" json:"retryCount"`
	LastError   null.String `bun:"last_error" json:"lastError" swaggertype:"string"`
	LastAttempt null.Time   `bun:"last_attempt" json:"lastAttempt" swaggertype:"string"`
}
