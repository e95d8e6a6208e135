// Package protocol defines constants shared by the server and API clients.
package protocol

const (
	// Version changes whenever the JSON shape of /api/compare changes
	// incompatibly.  Clients that cached a different number should refetch
	// everything.
	Version = 1
)
