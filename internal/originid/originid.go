// Package originid generates the short, opaque origin label a peer uses for
// the lifetime of the process.
package originid

import "github.com/google/uuid"

// New returns a fresh origin identifier: a UUIDv4 truncated to its first
// segment and prefixed, short enough to read comfortably in a transcript
// while still being collision-safe for a handful of co-located peers.
func New() string {
	return "peer-" + uuid.NewString()[:8]
}
