package websocket

import "log/slog"

// EventHandler reacts to one decoded envelope. Handlers run on the sender's
// read pump, so they must not block.
type EventHandler func(logger *slog.Logger, from ConnectionID, env Envelope)

// Dispatcher routes envelopes to a handler per EventKind. Relaying happens
// after dispatch regardless of the handler.
type Dispatcher struct {
	handlers map[EventKind]EventHandler
}

// NewDispatcher returns a dispatcher with a logging handler for every known
// kind and for EventUnrecognized.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[EventKind]EventHandler, len(eventKindNames))}
	for _, kind := range AllEventKinds() {
		d.handlers[kind] = logEvent(kind)
	}
	d.handlers[EventUnrecognized] = logUnrecognized
	return d
}

// Handle replaces the handler for kind.
func (d *Dispatcher) Handle(kind EventKind, h EventHandler) {
	d.handlers[kind] = h
}

// Dispatch runs the handler for env's kind and returns that kind.
func (d *Dispatcher) Dispatch(logger *slog.Logger, from ConnectionID, env Envelope) EventKind {
	kind := env.Kind()
	h, ok := d.handlers[kind]
	if !ok {
		h = logUnrecognized
	}
	h(logger, from, env)
	return kind
}

func logEvent(kind EventKind) EventHandler {
	return func(logger *slog.Logger, from ConnectionID, env Envelope) {
		logger.Info("event_received",
			"client_id", from,
			"event", kind.String(),
			"message", env.Data.Message,
		)
	}
}

func logUnrecognized(logger *slog.Logger, from ConnectionID, env Envelope) {
	logger.Warn("unknown_event_type",
		"client_id", from,
		"event", env.Type,
		"message", env.Data.Message,
	)
}
