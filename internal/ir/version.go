package ir

// Version constants for the flow schema and tool.
const (
	// SchemaVersion is the version of the flow wire schema understood here.
	SchemaVersion = "v4"

	// ToolVersion is the flowfilter release version.
	ToolVersion = "0.1.0"
)
