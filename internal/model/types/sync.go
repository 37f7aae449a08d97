package types

// SyncCompleteMessage is broadcast over NATS to all open UI instances after a
// drain pass finishes, so pending-count displays update without polling.
type SyncCompleteMessage struct {
	Type        string `json:"type"`
	SyncedCount int    `json:"syncedCount"`
	TotalCount  int    `json:"totalCount"`
}

// SyncTriggerMessage is the payload of a deferred wake-up. Source is purely
// diagnostic: "netmon", "ui", "periodic" or an external watcher.
type SyncTriggerMessage struct {
	Source string `json:"source"`
}
