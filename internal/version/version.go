// Package version provides version information reported to the IDE.
package version

import "fmt"

const (
	// Version is the current version of dbgpd
	Version = "0.2.0"

	// EngineName is the engine name announced in the init handshake
	EngineName = "dbgpd"

	// ProtocolVersion is the DBGP protocol version spoken on the wire
	ProtocolVersion = "1.0"

	// Author is announced in the init handshake
	Author = "ctagard"
)

// GetVersion returns the current version
func GetVersion() string {
	return Version
}

// String returns the engine banner, e.g. "dbgpd 0.2.0".
func String() string {
	return fmt.Sprintf("%s %s", EngineName, Version)
}
