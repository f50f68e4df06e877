package store

// Store provides an interface for a peer's replica of the shared variables
// and its operation log.
type Store interface {
	// Subscribe registers a variable with its initial value.
	Subscribe(variable string)
	// Apply overwrites the value of the entry's variable. Applying an
	// operation that was already applied is a no-op.
	Apply(entry LogEntry) error
	// Log appends the entry to the operation log unless the same operation
	// was already logged.
	Log(entry LogEntry) error
	// Committed returns true if operation seq from origin was logged.
	Committed(origin uint32, seq uint64) bool
	// Snapshot returns a copy of every subscribed variable.
	Snapshot() map[string]Variable
	// Entries returns a copy of the log, oldest first.
	Entries() []LogEntry
	Close() error
}
