// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the persistence layer.
type Recorder interface {
	// IncRead counts a read. result is "hit", "miss", "absent" or "decode_error".
	IncRead(result string)
	// IncWrite counts a write. result is "ok" or "error".
	IncWrite(result string)
	// IncRemoteChange counts a change event received from another tab.
	IncRemoteChange()
	// IncMigration counts a legacy migration step. kind is the entity kind.
	IncMigration(kind string)
	// IncDomainEvent counts a published domain event.
	IncDomainEvent(kind string)
}

// Noop implements Recorder with no-op methods.
type Noop struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return Noop{}
}

func (Noop) IncRead(string)        {}
func (Noop) IncWrite(string)       {}
func (Noop) IncRemoteChange()      {}
func (Noop) IncMigration(string)   {}
func (Noop) IncDomainEvent(string) {}
