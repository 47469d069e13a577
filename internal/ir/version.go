package ir

// Version constants for the rule-base definition and snapshot sections.
const (
	// IRVersion is the rule-base definition schema version.
	IRVersion = "1"

	// SnapshotVersion is written into every snapshot section header.
	SnapshotVersion = "1"

	// EngineVersion is the cepsnap engine version.
	EngineVersion = "0.1.0"
)
