package constant

const (
	// SubjectSyncTrigger is the NATS subject the agent subscribes to for
	// deferred wake-ups. Anything published here starts a drain pass, no
	// open UI required.
	SubjectSyncTrigger = "SYNC.trigger"

	// SubjectSyncComplete is the NATS subject on which the agent broadcasts
	// a SyncCompleteMessage after a pass so open UI instances can refresh
	// their pending-count display without polling.
	SubjectSyncComplete = "SYNC.complete"

	SyncCompleteMessageType = "SYNC_COMPLETE"
)
