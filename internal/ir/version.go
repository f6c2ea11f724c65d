package ir

// Version constants for the IR schema and the function library.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// LibraryVersion is the rxfn function library version.
	LibraryVersion = "0.1.0"
)
