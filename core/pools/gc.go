package pools

import "runtime/debug"

// GCSettings tunes the collector for a long-running server.
// Zero fields leave the runtime setting untouched.
type GCSettings struct {
	// Percent is the GOGC target. Negative disables collection.
	Percent int
	// MemoryLimit is the soft heap limit in bytes.
	MemoryLimit int64
}

// Apply installs s and returns the settings it replaced, so callers can
// restore them.
func (s GCSettings) Apply() GCSettings {
	prev := GCSettings{
		Percent:     debug.SetGCPercent(-1),
		MemoryLimit: debug.SetMemoryLimit(-1),
	}
	debug.SetGCPercent(prev.Percent)

	if s.Percent != 0 {
		debug.SetGCPercent(s.Percent)
	}
	if s.MemoryLimit > 0 {
		debug.SetMemoryLimit(s.MemoryLimit)
	}
	return prev
}
