package conversation

import "sync/atomic"

// Connectivity is the last network state reported by the client.
// The zero value reports online.
type Connectivity struct {
	offline atomic.Bool
}

// NewConnectivity returns a probe that starts online.
func NewConnectivity() *Connectivity {
	return &Connectivity{}
}

// Online reports the last known state.
func (c *Connectivity) Online() bool {
	return !c.offline.Load()
}

// Set records a state change and reports whether it differed from the previous one.
func (c *Connectivity) Set(online bool) bool {
	return c.offline.Swap(!online) == online
}
