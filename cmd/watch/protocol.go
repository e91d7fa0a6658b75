package watch

const (
	routeIndex  = "/"
	routeEvents = "/events"
)

// SSE event names. Graph and summary events are replayed to new subscribers; scheduler
// events are only delivered live.
const (
	sseEventGraph     = "graph"
	sseEventSummary   = "summary"
	sseEventScheduler = "scheduler"
)

// message is one server-sent event.
type message struct {
	Event string
	Data  string
}

// replayed reports whether the latest message of this kind is sent to new subscribers.
func (m message) replayed() bool {
	return m.Event == sseEventGraph || m.Event == sseEventSummary
}
