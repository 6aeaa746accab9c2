package ir

// Version constants for the event schema and engine.
const (
	// SchemaVersion is the event record schema version.
	SchemaVersion = "1"

	// EngineVersion is the rigs engine version stamped on receipts.
	EngineVersion = "0.3.0"
)
