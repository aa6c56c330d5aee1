package domain

// EventSink consumes normalized events and connection status transitions.
// Implementations must tolerate being called from the bus dispatch goroutine.
type EventSink interface {
	OnEvent(evt Event)
	OnStatus(change StatusChange)
}

// BusItem is one unit of handoff between the gateway and sinks: exactly one
// of Event or Status is set.
type BusItem struct {
	Event  *Event
	Status *StatusChange
}

// EventBus is the bounded handoff between the gateway read loop and sinks.
type EventBus interface {
	Publish(evt Event)
	PublishStatus(change StatusChange)
	Subscribe() <-chan BusItem
	Close()
}
