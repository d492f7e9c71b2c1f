package enums

// SyncSkipReason explains why a sync pass returned without touching the store.
type SyncSkipReason string

const (
	SyncSkipNone           SyncSkipReason = ""
	SyncSkipOffline        SyncSkipReason = "offline"
	SyncSkipAlreadySyncing SyncSkipReason = "already_syncing"
)
