package model

import (
	"time"

	"github.com/uptrace/bun"
)

// MediaBlob is the binary attachment of a PendingReport. It shares the
// report's id (1:1, never shared between reports) and is deleted in the same
// transaction as its owning report so it can never be orphaned.
type MediaBlob struct {
	bun.BaseModel `bun:"media_blobs,alias:mb"`

	ReportID  string    `bun:"report_id,pk" json:"reportId"`
	Payload   []byte    `bun:"payload" json:"-"`
	MimeType  string    `bun:"mime_type" json:"mimeType"`
	Filename  string    `bun:"filename" json:"filename"`
	ByteSize  int64     `bun:"byte_size" json:"byteSize"`
	CreatedAt time.Time `bun:"created_at" json:"createdAt"`
}
