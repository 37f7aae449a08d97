package types

// ReportRequest is the multipart form body of a hazard report submission as
// sent by the UI. The optional media part is handled separately from the
// scalar fields.
type ReportRequest struct {
	EventType   string  `form:"event_type" validate:"required,max=64"`
	Description string  `form:"description" validate:"required,max=4096"`
	Severity    int     `form:"severity" validate:"severity"`
	Lat         float64 `form:"lat" validate:"latitude"`
	Lng         float64 `form:"lng" validate:"longitude"`
}
