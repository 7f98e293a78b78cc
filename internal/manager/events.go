package manager

// Event is a lifecycle event: load_start, load_ready, load_failed,
// adapters_attached or unload_done.
type Event struct {
	Name      string
	ModelName string
	Fields    map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher forwards events to a printf-style logger.
type LogPublisher func(format string, args ...any)

// Publish implements EventPublisher.
func (f LogPublisher) Publish(e Event) {
	f("manager event=%s model=%q fields=%v", e.Name, e.ModelName, e.Fields)
}

// multiPublisher fans an event out to several publishers.
type multiPublisher []EventPublisher

func (m multiPublisher) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}
