package bus

// Event names emitted by the engine. Consumers (UI, logs) subscribe to the
// broadcast bus and filter on Type.
const (
	EventHeartbeatTick        = "heartbeat.tick"
	EventHeartbeatIdle        = "heartbeat.idle"
	EventHeartbeatSpawned     = "heartbeat.spawned"
	EventHeartbeatRetry       = "heartbeat.retry"
	EventHeartbeatError       = "heartbeat.error"
	EventHeartbeatCardCreated = "heartbeat.cardCreated"
	EventAgentStarted         = "agent.started"
	EventAgentCompleted       = "agent.completed"
	EventAgentFailed          = "agent.failed"
	EventAgentCancelled       = "agent.cancelled"
)

// Event is a tagged observability record broadcast to all subscribers.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Handler receives broadcast events. Handlers must not block; slow consumers
// should buffer internally.
type Handler func(Event)

// Sink is the single-function emit surface the engine components depend on.
// The concrete Bus implements it; tests pass a capture func.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(event Event) { f(event) }
