package ir

// NOTE: These are store-layer records, not part of the canonical IR.
// Seq is logical time; wall clock time is never stored.

// Revision is one persisted checkpoint of a running application: the state
// of every function instance at the same logical time.
type Revision struct {
	ID        string           `json:"id"`       // UUIDv7
	App       string           `json:"app"`      // application name
	AppHash   string           `json:"app_hash"` // AppHash of the application that wrote it
	Seq       int64            `json:"seq"`      // logical clock
	IRVersion string           `json:"ir_version"`
	Snapshots []SnapshotRecord `json:"snapshots,omitempty"`
}

// SnapshotRecord is the stored state of one function instance.
type SnapshotRecord struct {
	InstanceKey string   `json:"instance_key"` // "query/column"
	Function    string   `json:"function"`     // qualified name, e.g. "regex:find"
	State       IRObject `json:"state"`
	StateHash   string   `json:"state_hash"` // StateHash(InstanceKey, State)
}
